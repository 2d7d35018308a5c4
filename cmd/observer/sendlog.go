package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	llmobserver "github.com/sofatutor/llm-observer"
	"github.com/sofatutor/llm-observer/internal/capture"
	"github.com/spf13/cobra"
)

var sendlogFile string

var sendlogCmd = &cobra.Command{
	Use:   "sendlog",
	Short: "Submit a request log record manually",
	Long:  `Read a CapturedCall JSON document from a file (or stdin with -) and submit it to the collector.`,
	RunE:  runSendlog,
}

func init() {
	sendlogCmd.Flags().StringVarP(&sendlogFile, "file", "f", "-", "Path to the record JSON ('-' for stdin)")
	rootCmd.AddCommand(sendlogCmd)
}

func runSendlog(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	if sendlogFile == "-" {
		data, err = readAllStdin()
	} else {
		data, err = os.ReadFile(sendlogFile)
	}
	if err != nil {
		return fmt.Errorf("failed to read record: %w", err)
	}

	var call capture.CapturedCall
	if err := json.Unmarshal(data, &call); err != nil {
		return fmt.Errorf("record is not valid JSON: %w", err)
	}

	mon, err := llmobserver.NewFromEnv()
	if err != nil {
		return err
	}
	defer mon.Shutdown()

	id := mon.SendRequestLog(context.Background(), call)
	if id == "" {
		return fmt.Errorf("record was not accepted by the collector")
	}
	fmt.Println(id)
	return nil
}

func readAllStdin() ([]byte, error) {
	info, err := os.Stdin.Stat()
	if err == nil && info.Mode()&os.ModeCharDevice != 0 {
		return nil, fmt.Errorf("no input on stdin")
	}
	return io.ReadAll(os.Stdin)
}
