package session

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jingkaihe/skillforge/pkg/chat"
	"github.com/jingkaihe/skillforge/pkg/completion"
	"github.com/jingkaihe/skillforge/pkg/config"
	"github.com/jingkaihe/skillforge/pkg/export"
	"github.com/jingkaihe/skillforge/pkg/prompts"
	"github.com/jingkaihe/skillforge/pkg/skills"
	sopengine "github.com/jingkaihe/skillforge/pkg/sop"
)

// Services are the collaborators shared by every session
type Services struct {
	Client     completion.Client
	Store      skills.Store
	Compiler   *skills.Compiler
	Invoker    *chat.Invoker
	Exporter   *export.Exporter
	Renderer   *prompts.Renderer
	SOPOptions []sopengine.Option
	MaxHistory int
}

// NewServices wires the completion client, prompt renderer and skill store
// selected by cfg.
func NewServices(ctx context.Context, cfg config.Config) (*Services, error) {
	client, err := completion.New(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create completion client")
	}

	overrides, err := prompts.LoadOverrides(cfg.PromptsDir)
	if err != nil {
		return nil, err
	}
	renderer := prompts.Default()
	if cfg.PromptsDir != "" {
		renderer = prompts.NewRendererWithOverrides(prompts.TemplateFS, overrides)
	}

	store, err := skills.NewStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	return NewServicesWith(client, store, cfg, renderer), nil
}

// NewServicesWith wires already constructed client and store
func NewServicesWith(client completion.Client, store skills.Store, cfg config.Config, renderer *prompts.Renderer) *Services {
	if renderer == nil {
		renderer = prompts.Default()
	}
	return &Services{
		Client: client,
		Store:  store,
		Compiler: skills.NewCompiler(client,
			skills.WithRenderer(renderer),
			skills.WithTemperature(cfg.Temperature.Compile),
		),
		Invoker: chat.NewInvoker(client,
			chat.WithTemperature(cfg.Temperature.Invoke),
			chat.WithMaxMessages(cfg.Chat.MaxMessages),
		),
		Exporter: export.New(),
		Renderer: renderer,
		SOPOptions: []sopengine.Option{
			sopengine.WithRenderer(renderer),
			sopengine.WithTemperature(cfg.Temperature.SOP),
		},
		MaxHistory: cfg.SOP.MaxHistory,
	}
}

// NewSession creates an empty session identified by id
func (s *Services) NewSession(id string) *Session {
	state := sopengine.NewState(s.MaxHistory)
	return &Session{
		id:           id,
		engine:       sopengine.NewEngine(s.Client, state, s.SOPOptions...),
		compiler:     s.Compiler,
		store:        s.Store,
		invoker:      s.Invoker,
		exporter:     s.Exporter,
		conversation: chat.NewConversation(),
	}
}

// Close releases the skill store
func (s *Services) Close() error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Close()
}
