package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillforge/pkg/export"
	"github.com/jingkaihe/skillforge/pkg/presenter"
	"github.com/jingkaihe/skillforge/pkg/render"
	"github.com/jingkaihe/skillforge/pkg/skills"
)

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Manage and run saved skills",
	Long:  `List, inspect, run, export and delete the skills in the configured skill store.`,
}

var skillListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved skills",
	Long: `List the saved skills, optionally restricted by a glob pattern on the name.

Examples:
  skillforge skill list
  skillforge skill list --filter "report*"`,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		filter, _ := cmd.Flags().GetString("filter")

		services := mustLoadServices(ctx)
		defer services.Close()

		names, err := services.Store.List(ctx)
		if err != nil {
			reportError(presenter.Default(), err)
			os.Exit(1)
		}
		names, err = skills.FilterNames(names, filter)
		if err != nil {
			reportError(presenter.Default(), err)
			os.Exit(1)
		}
		if len(names) == 0 {
			presenter.Info("No skills found.")
			return
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tVERSION\tCREATED\tDESCRIPTION")
		fmt.Fprintln(tw, "----\t-------\t-------\t-----------")
		for _, name := range names {
			sk, err := services.Store.Load(ctx, name)
			if err != nil {
				fmt.Fprintf(tw, "%s\t?\t?\t[unreadable: %v]\n", name, err)
				continue
			}
			description := sk.Description
			if len([]rune(description)) > 60 {
				description = string([]rune(description)[:57]) + "..."
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", sk.SkillName, sk.Version, sk.CreatedAt.Local().Format("2006-01-02 15:04"), description)
		}
		tw.Flush()
	},
}

var skillShowCmd = &cobra.Command{
	Use:   "show <skill-name>",
	Short: "Show a skill, its schema and the SOP it was compiled from",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		services := mustLoadServices(ctx)
		defer services.Close()

		sk, err := services.Store.Load(ctx, args[0])
		if err != nil {
			reportError(presenter.Default(), err)
			os.Exit(1)
		}

		presenter.Markdown(render.Skill(sk))
		presenter.Section("System prompt")
		presenter.Info(sk.SystemPrompt)
		presenter.Separator()
		presenter.Markdown(render.SOP(sk.SourceSOP))
	},
}

var skillRunCmd = &cobra.Command{
	Use:   "run <skill-name>",
	Short: "Chat with a saved skill",
	Long: `Load a saved skill and send it messages. With --message a single message is sent and
the reply printed; otherwise an interactive chat starts.

Examples:
  skillforge skill run "Weekly report"
  skillforge skill run weekly_report -m "week 42" --ref notes.md --save markdown`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		message, _ := cmd.Flags().GetString("message")
		refs, _ := cmd.Flags().GetStringArray("ref")
		saveFormat, _ := cmd.Flags().GetString("save")
		outputDir, _ := cmd.Flags().GetString("output-dir")

		atts, err := readAttachments(refs)
		if err != nil {
			presenter.Error(err, "Failed to read attachments")
			os.Exit(1)
		}

		services := mustLoadServices(ctx)
		defer services.Close()

		p := presenter.Default()
		sess := services.NewSession(uuid.NewString())
		sk, err := sess.LoadSkill(ctx, args[0])
		if err != nil {
			reportError(p, err)
			os.Exit(1)
		}

		if message == "" && len(atts) == 0 {
			if err := runChat(ctx, p, sess, outputDir); err != nil {
				reportError(p, err)
				os.Exit(1)
			}
			return
		}

		reply, err := sess.Invoke(ctx, message, atts)
		if err != nil {
			reportError(p, err)
			os.Exit(1)
		}
		p.Reply(sk.SkillName, reply)

		if saveFormat == "" {
			return
		}
		doc, err := sess.Export(ctx, export.ParseFormat(saveFormat))
		if err != nil {
			reportError(p, err)
			os.Exit(1)
		}
		path, err := writeDocument(outputDir, doc)
		if err != nil {
			presenter.Error(err, "Failed to save reply")
			os.Exit(1)
		}
		presenter.Success("Saved " + path)
	},
}

var skillExportCmd = &cobra.Command{
	Use:   "export <skill-name>",
	Short: "Write a skill as a SKILL.md directory",
	Long: `Write a saved skill as <dir>/<skill_name>/SKILL.md with YAML frontmatter, so it can be
installed into agents that load skills from SKILL.md files.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		dir, _ := cmd.Flags().GetString("dir")

		services := mustLoadServices(ctx)
		defer services.Close()

		sk, err := services.Store.Load(ctx, args[0])
		if err != nil {
			reportError(presenter.Default(), err)
			os.Exit(1)
		}
		path, err := skills.WriteSkillMD(dir, sk)
		if err != nil {
			presenter.Error(err, "Failed to export skill")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Exported %q to %s", sk.SkillName, path))
	},
}

var skillDeleteCmd = &cobra.Command{
	Use:     "delete <skill-name>",
	Aliases: []string{"remove", "rm"},
	Short:   "Delete a saved skill",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		yes, _ := cmd.Flags().GetBool("yes")

		services := mustLoadServices(ctx)
		defer services.Close()

		if !yes {
			answer := presenter.Prompt(fmt.Sprintf("Delete skill %q?", args[0]), "y", "N")
			if answer != "y" && answer != "Y" {
				presenter.Info("Aborted.")
				return
			}
		}

		if err := services.Store.Delete(ctx, args[0]); err != nil {
			if errors.Is(err, skills.ErrNotFound) {
				presenter.Warning(fmt.Sprintf("Skill %q not found", args[0]))
				os.Exit(1)
			}
			reportError(presenter.Default(), err)
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Deleted skill %q", args[0]))
	},
}

func init() {
	skillListCmd.Flags().StringP("filter", "f", "", "Glob pattern on skill names, case insensitive")

	skillRunCmd.Flags().StringP("message", "m", "", "Send a single message instead of starting a chat")
	skillRunCmd.Flags().StringArrayP("ref", "r", nil, "File to attach to the message (repeatable)")
	skillRunCmd.Flags().StringP("save", "s", "", "Export the reply in this format (text, markdown, json)")
	skillRunCmd.Flags().StringP("output-dir", "o", ".", "Directory for exported documents")

	skillExportCmd.Flags().StringP("dir", "d", ".", "Directory to write the skill directory into")

	skillDeleteCmd.Flags().BoolP("yes", "y", false, "Delete without asking for confirmation")

	skillCmd.AddCommand(skillListCmd)
	skillCmd.AddCommand(withTracing(skillShowCmd))
	skillCmd.AddCommand(withTracing(skillRunCmd))
	skillCmd.AddCommand(withTracing(skillExportCmd))
	skillCmd.AddCommand(skillDeleteCmd)
}
