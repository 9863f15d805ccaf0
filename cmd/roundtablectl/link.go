package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ent0n29/roundtable/internal/policy"
	"github.com/ent0n29/roundtable/internal/sharelink"
)

func newLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Encode or decode shareable discussion links",
	}
	cmd.PersistentFlags().String("base-url", envOr("APP_PUBLIC_BASE_URL", "http://localhost:8080"), "Public base URL links point at")
	cmd.PersistentFlags().Duration("ttl", sharelink.DefaultTTL, "How long a link stays valid")
	cmd.AddCommand(newLinkEncodeCmd())
	cmd.AddCommand(newLinkDecodeCmd())
	return cmd
}

func newLinkEncodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Create a link that starts a discussion when opened",
		RunE:  runLinkEncode,
	}
	cmd.Flags().String("topic", "", "Discussion topic (required)")
	cmd.Flags().String("api-key", "", "Language model API key (overrides GEMINI_API_KEY env var)")
	cmd.Flags().String("candidate", "", "Candidate display name")
	cmd.Flags().String("created-by", "", "Recruiter or operator creating the link")
	cmd.Flags().Int("time-limit", 10, "Time limit in minutes")
	cmd.MarkFlagRequired("topic")
	return cmd
}

func runLinkEncode(cmd *cobra.Command, _ []string) error {
	topic, _ := cmd.Flags().GetString("topic")
	apiKey, _ := cmd.Flags().GetString("api-key")
	candidate, _ := cmd.Flags().GetString("candidate")
	createdBy, _ := cmd.Flags().GetString("created-by")
	timeLimit, _ := cmd.Flags().GetInt("time-limit")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("API key required: set --api-key flag or GEMINI_API_KEY env var")
	}

	codec := linkCodec(cmd)
	cfg, token, err := codec.New(sharelink.Config{
		Topic:         topic,
		APIKey:        apiKey,
		CandidateName: candidate,
		CreatedBy:     createdBy,
		TimeLimit:     timeLimit,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", color.CyanString("URL:    "), codec.URL(token))
	fmt.Fprintf(out, "%s %s\n", color.CyanString("Token:  "), token)
	fmt.Fprintf(out, "%s %s\n", color.CyanString("Expires:"), cfg.CreatedAt.Add(codec.TTL).Format(time.RFC3339))
	return nil
}

func newLinkDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode TOKEN",
		Short: "Show what a link contains and whether it is still valid",
		Args:  cobra.ExactArgs(1),
		RunE:  runLinkDecode,
	}
	cmd.Flags().Bool("show-key", false, "Print the API key unmasked")
	return cmd
}

func runLinkDecode(cmd *cobra.Command, args []string) error {
	showKey, _ := cmd.Flags().GetBool("show-key")
	codec := linkCodec(cmd)

	cfg, err := sharelink.Decode(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	printLinkConfig(out, cfg, showKey)

	now := codec.Now()
	err = sharelink.Validate(cfg, now, codec.TTL)
	var expired *sharelink.ExpiredLinkError
	switch {
	case errors.As(err, &expired):
		fmt.Fprintf(out, "%s expired %s ago\n", color.RedString("✗"), now.Sub(expired.ExpiredAt).Round(time.Minute))
		return errors.New("link expired")
	case err != nil:
		return err
	default:
		left := cfg.CreatedAt.Add(codec.TTL).Sub(now).Round(time.Minute)
		fmt.Fprintf(out, "%s valid for another %s\n", color.GreenString("✓"), left)
		return nil
	}
}

func printLinkConfig(out io.Writer, cfg sharelink.Config, showKey bool) {
	key := policy.MaskKey(cfg.APIKey)
	if showKey {
		key = cfg.APIKey
	}
	limit := "default"
	if cfg.TimeLimit > 0 {
		limit = fmt.Sprintf("%d min", cfg.TimeLimit)
	}
	fmt.Fprintf(out, "%s %s\n", color.HiBlackString("topic:     "), cfg.Topic)
	fmt.Fprintf(out, "%s %s\n", color.HiBlackString("candidate: "), cfg.CandidateName)
	fmt.Fprintf(out, "%s %s\n", color.HiBlackString("created by:"), cfg.CreatedBy)
	fmt.Fprintf(out, "%s %s\n", color.HiBlackString("time limit:"), limit)
	fmt.Fprintf(out, "%s %s\n", color.HiBlackString("api key:   "), key)
	fmt.Fprintf(out, "%s %s\n", color.HiBlackString("created at:"), cfg.CreatedAt.Format(time.RFC3339))
}

func linkCodec(cmd *cobra.Command) sharelink.Codec {
	if noColor, _ := cmd.Root().PersistentFlags().GetBool("no-color"); noColor {
		color.NoColor = true
	}
	baseURL, _ := cmd.Flags().GetString("base-url")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	if ttl <= 0 {
		ttl = sharelink.DefaultTTL
	}
	return sharelink.Codec{TTL: ttl, BaseURL: baseURL, Now: time.Now}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
