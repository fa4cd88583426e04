package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"kmlc/internal/api"
)

const (
	maxTopicTemperature = 2.0
	maxTopicTokens      = 4096
)

func newTopicsCommand(ctx *commandContext) *cobra.Command {
	topicsCmd := &cobra.Command{
		Use:   "topics",
		Short: "Browse and manage classification topics",
	}

	topicsCmd.AddCommand(newTopicsListCommand(ctx))
	topicsCmd.AddCommand(newTopicsShowCommand(ctx))
	topicsCmd.AddCommand(newTopicsCreateCommand(ctx))
	topicsCmd.AddCommand(newTopicsUpdateCommand(ctx))
	topicsCmd.AddCommand(newTopicsDeleteCommand(ctx))

	return topicsCmd
}

func newTopicsListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, requireUser(), func(deps *sessionDeps) error {
				topics, err := deps.client.ListTopics(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, topics)
				}
				out := cmd.OutOrStdout()
				if len(topics) == 0 {
					fmt.Fprintln(out, "No topics")
					return nil
				}
				rows := make([][]string, 0, len(topics))
				for _, topic := range topics {
					rows = append(rows, []string{topic.TopicID, topic.Name, topic.LLMProvider, topic.Model, topic.Description})
				}
				fmt.Fprint(out, topicListing.render(rows))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func newTopicsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <topic-id>",
		Short: "Show a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, requireUser(), func(deps *sessionDeps) error {
				topic, err := deps.client.GetTopic(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, line := range renderSectionHeader(topic.Name, shouldColorize(out)) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("ID", statusInfo, topic.TopicID, false))
				fmt.Fprintln(out, renderStatusLine("Provider", statusInfo, topic.LLMProvider, false))
				fmt.Fprintln(out, renderStatusLine("Model", statusInfo, topic.Model, false))
				fmt.Fprintln(out, renderStatusLine("Temperature", statusInfo, fmt.Sprintf("%.2f", topic.Temperature), false))
				fmt.Fprintln(out, renderStatusLine("Max tokens", statusInfo, fmt.Sprintf("%d", topic.MaxTokens), false))
				if topic.APIBaseURL != "" {
					fmt.Fprintln(out, renderStatusLine("API base URL", statusInfo, topic.APIBaseURL, false))
				}
				if topic.Description != "" {
					fmt.Fprintln(out, renderStatusLine("Description", statusInfo, topic.Description, false))
				}
				if topic.PromptTemplate != "" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, topic.PromptTemplate)
				}
				return nil
			})
		},
	}
}

// topicFlags holds the editable topic fields shared by create and update.
type topicFlags struct {
	name           string
	description    string
	provider       string
	model          string
	apiBaseURL     string
	apiKey         string
	promptTemplate string
	promptFile     string
	temperature    float64
	maxTokens      int
}

func (f *topicFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.name, "name", "", "Topic name")
	flags.StringVar(&f.description, "description", "", "Free-form description")
	flags.StringVar(&f.provider, "provider", "", "LLM provider (openai, anthropic, ...)")
	flags.StringVar(&f.model, "model", "", "Model name")
	flags.StringVar(&f.apiBaseURL, "api-base-url", "", "Provider API base URL")
	flags.StringVar(&f.apiKey, "api-key", "", "Provider API key")
	flags.StringVar(&f.promptTemplate, "prompt", "", "Prompt template text")
	flags.StringVar(&f.promptFile, "prompt-file", "", "Read the prompt template from a file")
	flags.Float64Var(&f.temperature, "temperature", 0, "Sampling temperature (0-2)")
	flags.IntVar(&f.maxTokens, "max-tokens", 150, "Completion token limit (1-4096)")
}

func (f *topicFlags) prompt() (string, error) {
	if f.promptFile == "" {
		return f.promptTemplate, nil
	}
	if f.promptTemplate != "" {
		return "", errors.New("use only one of --prompt or --prompt-file")
	}
	data, err := os.ReadFile(f.promptFile)
	if err != nil {
		return "", fmt.Errorf("read prompt file: %w", err)
	}
	return string(data), nil
}

func validateTemperature(value float64) error {
	if value < 0 || value > maxTopicTemperature {
		return fmt.Errorf("temperature must be between 0 and %.0f", maxTopicTemperature)
	}
	return nil
}

func validateMaxTokens(value int) error {
	if value < 1 || value > maxTopicTokens {
		return fmt.Errorf("max tokens must be between 1 and %d", maxTopicTokens)
	}
	return nil
}

func newTopicsCreateCommand(ctx *commandContext) *cobra.Command {
	var flags topicFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a topic (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(flags.name) == "" {
				return errors.New("--name is required")
			}
			if err := validateTemperature(flags.temperature); err != nil {
				return err
			}
			if err := validateMaxTokens(flags.maxTokens); err != nil {
				return err
			}
			prompt, err := flags.prompt()
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, requireAdmin(), func(deps *sessionDeps) error {
				id, err := deps.client.CreateTopic(cmd.Context(), api.TopicInput{
					Name:           strings.TrimSpace(flags.name),
					Description:    flags.description,
					LLMProvider:    flags.provider,
					Model:          flags.model,
					APIBaseURL:     flags.apiBaseURL,
					APIKey:         flags.apiKey,
					PromptTemplate: prompt,
					Temperature:    flags.temperature,
					MaxTokens:      flags.maxTokens,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created topic %s\n", id)
				return nil
			})
		},
	}

	flags.register(cmd)
	return cmd
}

func newTopicsUpdateCommand(ctx *commandContext) *cobra.Command {
	var flags topicFlags

	cmd := &cobra.Command{
		Use:   "update <topic-id>",
		Short: "Change fields of a topic (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := buildTopicPatch(cmd, &flags)
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, requireAdmin(), func(deps *sessionDeps) error {
				if err := deps.client.UpdateTopic(cmd.Context(), args[0], patch); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated topic %s\n", args[0])
				return nil
			})
		},
	}

	flags.register(cmd)
	return cmd
}

// buildTopicPatch sends only the flags the user set.
func buildTopicPatch(cmd *cobra.Command, f *topicFlags) (api.TopicPatch, error) {
	var patch api.TopicPatch
	changed := cmd.Flags().Changed
	setString := func(flag string, value string, dst **string) {
		if changed(flag) {
			v := value
			*dst = &v
		}
	}
	setString("name", f.name, &patch.Name)
	setString("description", f.description, &patch.Description)
	setString("provider", f.provider, &patch.LLMProvider)
	setString("model", f.model, &patch.Model)
	setString("api-base-url", f.apiBaseURL, &patch.APIBaseURL)
	setString("api-key", f.apiKey, &patch.APIKey)

	if changed("prompt") || changed("prompt-file") {
		prompt, err := f.prompt()
		if err != nil {
			return api.TopicPatch{}, err
		}
		patch.PromptTemplate = &prompt
	}
	if changed("temperature") {
		if err := validateTemperature(f.temperature); err != nil {
			return api.TopicPatch{}, err
		}
		temperature := f.temperature
		patch.Temperature = &temperature
	}
	if changed("max-tokens") {
		if err := validateMaxTokens(f.maxTokens); err != nil {
			return api.TopicPatch{}, err
		}
		maxTokens := f.maxTokens
		patch.MaxTokens = &maxTokens
	}
	if patch == (api.TopicPatch{}) {
		return api.TopicPatch{}, errors.New("nothing to update; pass at least one field flag")
	}
	return patch, nil
}

func newTopicsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <topic-id>",
		Short: "Delete a topic (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, requireAdmin(), func(deps *sessionDeps) error {
				if err := deps.client.DeleteTopic(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted topic %s\n", args[0])
				return nil
			})
		},
	}
}
