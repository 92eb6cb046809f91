package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/avoxio/turnctl/cmd/cli/cmd"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	envFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "turnctl",
	Short: "Turn Controller: a real-time voice-agent orchestrator",
	Long: `turnctl coordinates STT, LLM, and TTS with speculative execution,
cancellation, barge-in, and adaptive end-of-utterance detection.

Examples:
  turnctl run                     # drive one session against fake providers from stdin
  turnctl serve --addr :8080      # serve the reference websocket transport
  turnctl serve --stt deepgram --llm openai --tts elevenlabs`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "environment file to load")

	rootCmd.AddCommand(cmd.NewRunCmd())
	rootCmd.AddCommand(cmd.NewServeCmd())
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if envFile == "" {
		return
	}
	if err := godotenv.Load(envFile); err != nil {
		projectRoot := findProjectRoot()
		if projectRoot != "" {
			envPath := filepath.Join(projectRoot, envFile)
			if err := godotenv.Load(envPath); err != nil {
				if verbose {
					fmt.Printf("Warning: could not load env file %s: %v\n", envFile, err)
				}
			} else if verbose {
				fmt.Printf("Loaded environment from: %s\n", envPath)
			}
		}
	} else if verbose {
		fmt.Printf("Loaded environment from: %s\n", envFile)
	}
}

// findProjectRoot looks for the project root by finding go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func main() {
	Execute()
}
