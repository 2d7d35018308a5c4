package main

import (
	"context"
	"fmt"

	llmobserver "github.com/sofatutor/llm-observer"
	"github.com/spf13/cobra"
)

var (
	fbRequestLogID   string
	fbProviderID     string
	fbOriginalOutput string
	fbRevisedOutput  string
	fbClientID       string
	fbCreatorID      string
	fbExplanation    string
	fbLike           bool
	fbDislike        bool
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Submit feedback for a request log",
	Long: `Attach a quality signal to a previously logged request. Correlation can be
exact (--log-id or --provider-id) or fuzzy via --original/--revised output text.`,
	RunE: runFeedback,
}

func init() {
	feedbackCmd.Flags().StringVar(&fbRequestLogID, "log-id", "", "Collector id of the request log")
	feedbackCmd.Flags().StringVar(&fbProviderID, "provider-id", "", "Provider's own request id")
	feedbackCmd.Flags().StringVar(&fbOriginalOutput, "original", "", "Original model output (fuzzy match)")
	feedbackCmd.Flags().StringVar(&fbRevisedOutput, "revised", "", "Revised output")
	feedbackCmd.Flags().StringVar(&fbClientID, "client-id", "", "Client unique id")
	feedbackCmd.Flags().StringVar(&fbCreatorID, "creator-id", "", "Creator unique id")
	feedbackCmd.Flags().StringVar(&fbExplanation, "explanation", "", "Free-form explanation")
	feedbackCmd.Flags().BoolVar(&fbLike, "like", false, "Positive signal")
	feedbackCmd.Flags().BoolVar(&fbDislike, "dislike", false, "Negative signal")

	rootCmd.AddCommand(feedbackCmd)
}

func runFeedback(cmd *cobra.Command, args []string) error {
	if fbLike && fbDislike {
		return fmt.Errorf("--like and --dislike are mutually exclusive")
	}

	fb := llmobserver.Feedback{
		LLMRequestLogID:     fbRequestLogID,
		LLMProviderUniqueID: fbProviderID,
		OriginalOutput:      fbOriginalOutput,
		RevisedOutput:       fbRevisedOutput,
		ClientUniqueID:      fbClientID,
		CreatorUniqueID:     fbCreatorID,
		Explanation:         fbExplanation,
	}
	if fbLike || fbDislike {
		like := fbLike
		fb.Like = &like
	}

	mon, err := llmobserver.NewFromEnv()
	if err != nil {
		return err
	}
	defer mon.Shutdown()

	id := mon.SendFeedback(context.Background(), fb)
	if id == "" {
		return fmt.Errorf("feedback was not accepted by the collector")
	}
	fmt.Println(id)
	return nil
}
