package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/bookbaker/internal/book"
	"github.com/jackzampolin/bookbaker/internal/config"
	"github.com/jackzampolin/bookbaker/internal/store"
)

// bookStatus is the show command's summary of a stored book.
type bookStatus struct {
	Title           string    `json:"title" yaml:"title"`
	TitleTranslated string    `json:"title_translated,omitempty" yaml:"title_translated,omitempty"`
	Author          string    `json:"author" yaml:"author"`
	URL             string    `json:"url" yaml:"url"`
	Chapters        int       `json:"chapters" yaml:"chapters"`
	Episodes        int       `json:"episodes" yaml:"episodes"`
	Lines           int       `json:"lines" yaml:"lines"`
	TranslatedLines int       `json:"translated_lines" yaml:"translated_lines"`
	FullyTranslated bool      `json:"fully_translated" yaml:"fully_translated"`
	SavedAt         time.Time `json:"saved_at" yaml:"saved_at"`
}

var showCmd = &cobra.Command{
	Use:   "show <friendly-name>",
	Short: "Show the stored status of a task's book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		var task *book.Task
		for _, t := range cfg.Tasks {
			if t.FriendlyName == args[0] {
				task = t
				break
			}
		}
		if task == nil {
			return fmt.Errorf("no task named %q in config", args[0])
		}

		st, err := store.Open(cfg.DB.Path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		b, err := st.GetByURL(cmd.Context(), task.URL)
		if err != nil {
			return fmt.Errorf("no stored book for task %q: %w", args[0], err)
		}

		return printStatus(statusOf(b))
	},
}

func statusOf(b *book.Book) bookStatus {
	s := bookStatus{
		Title:           b.Title,
		Author:          b.Author,
		URL:             b.URL,
		Chapters:        len(b.Chapters),
		FullyTranslated: b.FullyTranslated(),
		SavedAt:         b.TimeMeta.SavedAt,
	}
	if b.TitleTranslated != nil {
		s.TitleTranslated = *b.TitleTranslated
	}
	for _, ch := range b.Chapters {
		s.Episodes += len(ch.Episodes)
		for _, ep := range ch.Episodes {
			for k := range ep.Lines {
				line := &ep.Lines[k]
				if line.Blank() {
					continue
				}
				s.Lines++
				if line.Translated != nil {
					s.TranslatedLines++
				}
			}
		}
	}
	return s
}

func printStatus(s bookStatus) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "yaml":
		data, err := yaml.Marshal(s)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	default:
		slog.Warn("unknown output format, using yaml", "format", outputFormat)
		data, err := yaml.Marshal(s)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}
}
