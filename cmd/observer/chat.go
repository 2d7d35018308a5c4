package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chzyer/readline"
	llmobserver "github.com/sofatutor/llm-observer"
	"github.com/sofatutor/llm-observer/internal/client"
	"github.com/sofatutor/llm-observer/internal/config"
	"github.com/spf13/cobra"
)

// Chat command flags
var (
	chatBaseURL  string
	chatAPIKey   string
	model        string
	temperature  float64
	maxTokens    int
	systemPrompt string
	verboseMode  bool
	useStreaming bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat with an OpenAI-compatible API",
	Long: `Start an interactive chat session. Every outbound call goes through the
observer's instrumented HTTP client, so records show up at the collector
while you chat.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatBaseURL, "api-base", "https://api.openai.com", "Chat API base URL")
	chatCmd.Flags().StringVar(&chatAPIKey, "api-key", "", "Chat API key (falls back to OPENAI_API_KEY)")
	chatCmd.Flags().StringVar(&model, "model", "gpt-4.1-mini", "Model to use")
	chatCmd.Flags().Float64Var(&temperature, "temperature", 0.7, "Temperature for generation")
	chatCmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Maximum tokens to generate (0 = no limit)")
	chatCmd.Flags().StringVar(&systemPrompt, "system", "You are a helpful assistant.", "System prompt")
	chatCmd.Flags().BoolVarP(&verboseMode, "verbose", "v", false, "Show request/response details")
	chatCmd.Flags().BoolVar(&useStreaming, "stream", true, "Use streaming for responses")

	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	apiKey := chatAPIKey
	if apiKey == "" {
		apiKey = config.EnvOrDefault("OPENAI_API_KEY", "")
	}
	if apiKey == "" {
		return fmt.Errorf("an API key is required (--api-key or OPENAI_API_KEY)")
	}

	mon, err := llmobserver.NewFromEnv()
	if err != nil {
		return err
	}
	defer mon.Shutdown()

	httpClient := mon.WrapClient(&http.Client{Timeout: 60 * time.Second})
	chatClient := client.NewChatClient(chatBaseURL, apiKey, httpClient)

	fmt.Println("Starting chat session with", model)
	if useStreaming {
		fmt.Println("Streaming mode enabled")
	}
	fmt.Println("Type 'exit' or 'quit' to end the session")
	fmt.Println("System prompt:", systemPrompt)
	fmt.Println()

	messages := []client.ChatMessage{
		{Role: "system", Content: systemPrompt},
	}

	rl, err := readline.New("> ")
	if err != nil {
		return fmt.Errorf("error initializing readline: %w", err)
	}
	defer func() {
		if err := rl.Close(); err != nil {
			fmt.Printf("Error closing readline: %v\n", err)
		}
	}()

	for {
		input, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(input) == 0 {
				fmt.Println("Ending chat session")
				break
			}
			continue
		} else if err == io.EOF {
			fmt.Println("Ending chat session")
			break
		} else if err != nil {
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input = strings.TrimSpace(input)
		if input == "exit" || input == "quit" {
			fmt.Println("Ending chat session")
			break
		}
		if input == "" {
			continue
		}

		messages = append(messages, client.ChatMessage{Role: "user", Content: input})

		response, err := chatClient.SendChatRequest(messages, client.ChatOptions{
			Model:        model,
			Temperature:  temperature,
			MaxTokens:    maxTokens,
			UseStreaming: useStreaming,
			VerboseMode:  verboseMode,
		}, rl)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		if len(response.Choices) == 0 {
			fmt.Println("No response from model")
			continue
		}

		assistantMessage := response.Choices[0].Message
		messages = append(messages, assistantMessage)
		if !useStreaming {
			fmt.Println(assistantMessage.Content)
		}

		if verboseMode && response.Usage.TotalTokens > 0 {
			grey := func(s string) string { return "\033[90m" + s + "\033[0m" }
			fmt.Printf("\n%s\n\n", grey(fmt.Sprintf("[Tokens: %d prompt, %d completion, %d total]",
				response.Usage.PromptTokens,
				response.Usage.CompletionTokens,
				response.Usage.TotalTokens)))
		}
	}
	return nil
}
