package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type transcriptOptions struct {
	dbPath string
	format string
	limit  int
}

// transcriptDoc is the exported form of one stored session.
type transcriptDoc struct {
	Session  domain.TranscriptSession `json:"session" yaml:"session"`
	Messages []domain.Message         `json:"messages" yaml:"messages"`
}

func newTranscriptCmd(a *app) *cobra.Command {
	opts := &transcriptOptions{}
	cmd := &cobra.Command{
		Use:   "transcript [session-id]",
		Short: "Print a stored transcript, or list sessions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.dbPath
			if path == "" {
				path = a.cfg.Transcript.Path
			}
			repo, err := store.NewSQLite(path)
			if err != nil {
				return fmt.Errorf("open transcript store: %w", err)
			}
			defer func() { _ = repo.Close() }()

			if len(args) == 0 {
				return listTranscripts(cmd, repo, opts.limit)
			}
			return printTranscript(cmd, repo, args[0], opts.format)
		},
	}
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "Transcript database (default transcript_path)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json or yaml")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Sessions to list")
	return cmd
}

func listTranscripts(cmd *cobra.Command, repo store.Repository, limit int) error {
	sessions, err := repo.ListSessions(cmd.Context(), limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No transcripts recorded.")
		return nil
	}
	for _, s := range sessions {
		user := s.UserID
		if user == "" {
			user = "-"
		}
		fmt.Fprintf(out, "%s  %s  %s\n", s.SessionID, s.CreatedAt.Local().Format("2006-01-02 15:04:05"), user)
	}
	return nil
}

func printTranscript(cmd *cobra.Command, repo store.Repository, sessionID, format string) error {
	sess, err := repo.GetSession(cmd.Context(), sessionID)
	if err != nil {
		return err
	}
	entries, err := repo.ListMessages(cmd.Context(), sessionID)
	if err != nil {
		return err
	}

	doc := transcriptDoc{Session: *sess, Messages: make([]domain.Message, 0, len(entries))}
	for _, e := range entries {
		doc.Messages = append(doc.Messages, e.Message)
	}
	return writeTranscript(cmd.OutOrStdout(), doc, format)
}

func writeTranscript(out io.Writer, doc transcriptDoc, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "text", "":
		fmt.Fprintf(out, "Session %s (%s)\n", doc.Session.SessionID, doc.Session.Endpoint)
		for _, m := range doc.Messages {
			line := fmt.Sprintf("%s: %s", roleLabel(m.Role), m.Text)
			if m.IsError {
				line += " " + errorStyle.Render("(error)")
			}
			fmt.Fprintln(out, line)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
