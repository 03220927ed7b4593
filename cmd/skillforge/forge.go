package main

import (
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillforge/pkg/logger"
	"github.com/jingkaihe/skillforge/pkg/presenter"
	"github.com/jingkaihe/skillforge/pkg/render"
)

// ForgeConfig holds the options of the forge command
type ForgeConfig struct {
	Task        string
	Deliverable string
	References  []string
	NoChat      bool
	OutputDir   string
}

var forgeCmd = &cobra.Command{
	Use:   "forge",
	Short: "Draft an SOP for a task, refine it and compile it into a skill",
	Long: `Draft a standard operating procedure from a task description and the expected
deliverable, optionally grounded on reference files (txt, md, json, csv, html, docx,
xlsx, pptx). Refine the draft with free-form feedback, undo revisions, and confirm to
compile and save it as a skill. After confirming you can chat with the new skill.

Examples:
  skillforge forge --task "weekly status report" --deliverable "one page summary"
  skillforge forge --ref notes.docx --ref budget.xlsx`,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		config := getForgeConfigFromFlags(cmd)

		p := presenter.Default()
		if config.Task == "" {
			config.Task = p.Prompt("Describe the task")
		}
		if config.Deliverable == "" {
			config.Deliverable = p.Prompt("Describe the deliverable")
		}

		refs, err := readAttachments(config.References)
		if err != nil {
			presenter.Error(err, "Failed to read reference files")
			os.Exit(1)
		}

		services := mustLoadServices(ctx)
		defer services.Close()

		sess := services.NewSession(uuid.NewString())
		logger.G(ctx).WithField("session", sess.ID()).WithField("references", len(refs)).Debug("starting forge session")

		draft, err := sess.Synthesize(ctx, config.Task, config.Deliverable, refs)
		if err != nil {
			reportError(p, err)
			os.Exit(1)
		}
		p.Markdown(render.SOP(draft))

		confirmed, err := runForgeLoop(ctx, p, sess)
		if err != nil {
			presenter.Error(err, "Failed to read input")
			os.Exit(1)
		}
		if !confirmed || config.NoChat {
			return
		}

		if err := runChat(ctx, p, sess, config.OutputDir); err != nil {
			reportError(p, err)
			os.Exit(1)
		}
	},
}

func init() {
	forgeCmd.Flags().StringP("task", "t", "", "Task description (prompted when empty)")
	forgeCmd.Flags().StringP("deliverable", "d", "", "Expected deliverable (prompted when empty)")
	forgeCmd.Flags().StringArrayP("ref", "r", nil, "Reference file to ground the SOP on (repeatable)")
	forgeCmd.Flags().Bool("no-chat", false, "Exit after compiling instead of chatting with the skill")
	forgeCmd.Flags().StringP("output-dir", "o", ".", "Directory for documents saved from the chat")
}

func getForgeConfigFromFlags(cmd *cobra.Command) *ForgeConfig {
	config := &ForgeConfig{}
	if task, err := cmd.Flags().GetString("task"); err == nil {
		config.Task = task
	}
	if deliverable, err := cmd.Flags().GetString("deliverable"); err == nil {
		config.Deliverable = deliverable
	}
	if refs, err := cmd.Flags().GetStringArray("ref"); err == nil {
		config.References = refs
	}
	if noChat, err := cmd.Flags().GetBool("no-chat"); err == nil {
		config.NoChat = noChat
	}
	if dir, err := cmd.Flags().GetString("output-dir"); err == nil {
		config.OutputDir = dir
	}
	return config
}
