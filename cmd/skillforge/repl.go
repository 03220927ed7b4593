package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/jingkaihe/skillforge/pkg/export"
	"github.com/jingkaihe/skillforge/pkg/ingest"
	"github.com/jingkaihe/skillforge/pkg/presenter"
	"github.com/jingkaihe/skillforge/pkg/render"
	"github.com/jingkaihe/skillforge/pkg/session"
	"github.com/jingkaihe/skillforge/pkg/types/failure"
)

// readAttachments loads the files at paths as ingest attachments
func readAttachments(paths []string) ([]ingest.Attachment, error) {
	atts := make([]ingest.Attachment, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}
		atts = append(atts, ingest.Attachment{Name: filepath.Base(path), Data: data})
	}
	return atts, nil
}

// writeDocument writes doc into dir and returns its path
func writeDocument(dir string, doc export.Document) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create %s", dir)
	}
	path := filepath.Join(dir, doc.Filename)
	if err := os.WriteFile(path, doc.Data, 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", path)
	}
	return path, nil
}

// reportError prints err with the label of its failure kind
func reportError(p presenter.Presenter, err error) {
	if k, ok := failure.KindOf(err); ok {
		p.Error(err, k.Label())
		return
	}
	p.Error(err, "")
}

// reportForgeError prints err followed by the SOP that is still current
func reportForgeError(p presenter.Presenter, sess *session.Session, err error) {
	reportError(p, err)
	if current, ok := sess.CurrentSOP(); ok {
		p.Markdown(render.SOP(current))
	}
}

// splitCommand splits "/save md" into ("/save", "md")
func splitCommand(line string) (string, string) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

const forgeHelp = `Commands:
  show              print the current SOP
  diff              show what the last revision changed
  undo              restore the previous version
  confirm           compile the current SOP into a skill
  quit              leave without compiling
Anything else is sent as revision feedback.`

// runForgeLoop drives the revise/undo/confirm loop. It reports whether the
// user confirmed and a skill was compiled.
func runForgeLoop(ctx context.Context, p presenter.Presenter, sess *session.Session) (bool, error) {
	p.Info(forgeHelp)
	for {
		line, err := p.ReadLine("sop> ")
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if line == "" {
			continue
		}

		cmd, _ := splitCommand(line)
		switch cmd {
		case "quit", "exit":
			return false, nil
		case "help":
			p.Info(forgeHelp)
		case "show":
			if current, ok := sess.CurrentSOP(); ok {
				p.Markdown(render.SOP(current))
			}
		case "diff":
			p.Diff(sess.Diff())
		case "undo":
			res, err := sess.Undo()
			if err != nil {
				reportForgeError(p, sess, err)
				continue
			}
			p.Info(res.Message())
			p.Markdown(render.SOP(res.Current))
		case "confirm":
			sk, location, err := sess.Compile(ctx)
			if err != nil {
				reportForgeError(p, sess, err)
				continue
			}
			p.Success(fmt.Sprintf("Saved skill %q to %s", sk.SkillName, location))
			p.Markdown(render.Skill(sk))
			p.Section("System prompt")
			p.Info(sk.SystemPrompt)
			return true, nil
		default:
			revised, err := sess.Revise(ctx, line)
			if err != nil {
				reportForgeError(p, sess, err)
				continue
			}
			p.Markdown(render.SOP(revised))
			p.Diff(sess.Diff())
		}
	}
}

const chatHelp = `Commands:
  /attach <path>    attach a file to the next message
  /save <format>    export the last reply (text, markdown, json)
  /history          print the conversation
  /clear            start a new conversation
  /quit             leave the chat`

// runChat sends each line to the active skill until /quit or end of input.
// Exported documents are written to dir.
func runChat(ctx context.Context, p presenter.Presenter, sess *session.Session, dir string) error {
	sk, ok := sess.ActiveSkill()
	if !ok {
		return failure.New(failure.KindState, "chat", "no active skill")
	}

	p.Section("Chat with " + sk.SkillName)
	p.Info(chatHelp)

	var pending []ingest.Attachment
	for {
		line, err := p.ReadLine("you> ")
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}

		cmd, arg := splitCommand(line)
		switch cmd {
		case "/quit", "/exit":
			return nil
		case "/help":
			p.Info(chatHelp)
		case "/clear":
			sess.ClearConversation()
			pending = nil
			p.Success("Conversation cleared")
		case "/history":
			for _, msg := range sess.Messages() {
				p.Reply(msg.Role, msg.Content)
			}
		case "/attach":
			atts, err := readAttachments([]string{arg})
			if err != nil {
				reportError(p, err)
				continue
			}
			pending = append(pending, atts...)
			p.Info(fmt.Sprintf("Attached %s (%d pending)", atts[0].Name, len(pending)))
		case "/save":
			doc, err := sess.Export(ctx, export.ParseFormat(arg))
			if err != nil {
				reportError(p, err)
				continue
			}
			path, err := writeDocument(dir, doc)
			if err != nil {
				reportError(p, err)
				continue
			}
			p.Success("Saved " + path)
		default:
			reply, err := sess.Invoke(ctx, line, pending)
			if err != nil {
				reportError(p, err)
				continue
			}
			pending = nil
			p.Reply(sk.SkillName, reply)
		}
	}
}
