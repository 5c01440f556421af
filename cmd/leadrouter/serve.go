package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/xaenox/lead-router/internal/channels"
	"github.com/xaenox/lead-router/internal/channels/direct"
	"github.com/xaenox/lead-router/internal/channels/mailbox"
	"github.com/xaenox/lead-router/internal/channels/telegram"
	"github.com/xaenox/lead-router/internal/channels/whatsapp"
	"github.com/xaenox/lead-router/internal/dedup"
	"github.com/xaenox/lead-router/internal/escalation"
	"github.com/xaenox/lead-router/internal/metrics"
	"github.com/xaenox/lead-router/internal/models"
	"github.com/xaenox/lead-router/internal/orchestrator"
	"github.com/xaenox/lead-router/internal/rotation"
	"github.com/xaenox/lead-router/internal/server"
	"github.com/xaenox/lead-router/pkg/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func serveCMD(opts *rootOptions) *cobra.Command {
	var addr string
	var migrateFirst bool
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and the channel pollers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := runServe(cmd.Context(), cfg, migrateFirst, logger); err != nil {
				logger.Error("Lead router stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	serve.Flags().BoolVar(&migrateFirst, "migrate", false, "apply Postgres migrations before serving")
	return serve
}

type migrator interface {
	Migrate() error
}

func runServe(ctx context.Context, cfg *config.Config, migrateFirst bool, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	if m, ok := store.(migrator); ok && migrateFirst {
		if err := m.Migrate(); err != nil {
			return err
		}
	}

	rdb, err := openRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	publisher := openPublisher(cfg, logger)
	defer publisher.Close()

	m := metrics.New()
	clf, resp := buildModels(cfg, logger)

	scheduler, err := rotation.NewScheduler(roster(cfg), store, nil, logger)
	if err != nil {
		return fmt.Errorf("build rotation: %w", err)
	}

	chat := whatsapp.NewSender(whatsapp.Config{
		BaseURL:  cfg.MegaAPI.BaseURL,
		Instance: cfg.MegaAPI.Instance,
		Token:    cfg.MegaAPI.Token,
	}, nil, logger)

	var bot *telegram.Bot
	var botSender escalation.Sender
	if cfg.Telegram.Token != "" {
		bot, err = telegram.New(cfg.Telegram.Token, scheduler, logger)
		if err != nil {
			logger.Warn("Telegram bot unavailable", zap.Error(err))
		} else {
			botSender = bot
		}
	}

	notifier, notifyChannel, err := notificationSender(cfg, chat, botSender)
	if err != nil {
		return err
	}
	engine := escalation.NewEngine(store, scheduler, notifier, publisher, m, escalation.Config{
		GroupAddress:  cfg.Notify.GroupAddress,
		NotifyChannel: notifyChannel,
		TestMode:      cfg.Notify.TestMode,
	}, logger)

	pipelines := []orchestrator.Pipeline{
		orchestrator.WhatsAppPipeline(chat, newRecord(ctx, models.ChannelWhatsApp, cfg, rdb, logger)),
	}

	var mailPort *mailbox.IMAPPort
	if cfg.Email.Enabled() {
		mailPort = mailbox.NewIMAPPort(mailbox.Config{
			Address:    cfg.Email.Address,
			Password:   cfg.Email.Password,
			IMAPServer: cfg.Email.IMAPServer,
			IMAPPort:   cfg.Email.IMAPPort,
			SMTPServer: cfg.Email.SMTPServer,
			SMTPPort:   cfg.Email.SMTPPort,
			Mailbox:    cfg.Email.Mailbox,
		}, logger)
		defer mailPort.Close()
		pipelines = append(pipelines, orchestrator.EmailPipeline(mailbox.NewSender(mailPort),
			newRecord(ctx, models.ChannelEmail, cfg, rdb, logger)))
	}

	var bridge *direct.BridgeClient
	var directRecord *dedup.Record
	if cfg.Instagram.Enabled {
		directRecord = newRecord(ctx, models.ChannelInstagram, cfg, rdb, logger)
		bridge = direct.NewBridgeClient(cfg.Instagram.BridgeURL, cfg.Instagram.Token, nil, logger)
		limiter := rate.NewLimiter(rate.Every(cfg.Instagram.SendInterval()), 1)
		pipelines = append(pipelines, orchestrator.InstagramPipeline(direct.NewSender(bridge, limiter), directRecord))
	}

	orch := orchestrator.New(store, clf, resp, engine, m, logger, pipelines...)
	srv := server.New(cfg.Server.Addr, cfg.App.Name, orch, scheduler, m, logger)

	srv.SetChannel(models.ChannelWhatsApp, server.ChannelInfo{
		Status:  chat.Status(),
		Type:    "webhook",
		Details: "MegaAPI webhook at /webhook/whatsapp",
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	emailInfo := server.ChannelInfo{Type: "monitor", Interval: seconds(cfg.Email.Interval())}
	if mailPort == nil {
		emailInfo.Status = channels.Disabled("email.address or email.password not set")
	} else if err := mailPort.Check(ctx); err != nil {
		emailInfo.Status = channels.Unavailable(err)
	} else {
		emailInfo.Status = channels.Ready()
		emailInfo.Details = cfg.Email.Address
		poller := mailbox.NewPoller(mailPort, orch, logger)
		g.Go(func() error {
			return channels.RunLoop(gctx, string(models.ChannelEmail), cfg.Email.Interval(), poller.Poll, logger)
		})
	}
	srv.SetChannel(models.ChannelEmail, emailInfo)

	instaInfo := server.ChannelInfo{Type: "monitor", Interval: seconds(cfg.Instagram.Interval())}
	if bridge == nil {
		instaInfo.Status = channels.Disabled("instagram.enabled is false")
	} else {
		poller := direct.NewPoller(bridge, orch, directRecord, logger)
		instaInfo.Status = poller.Setup(ctx)
		if instaInfo.Status.State == channels.StateReady {
			instaInfo.Details = cfg.Instagram.BridgeURL
			g.Go(func() error {
				return channels.RunLoop(gctx, string(models.ChannelInstagram), cfg.Instagram.Interval(), poller.Poll, logger)
			})
		}
	}
	srv.SetChannel(models.ChannelInstagram, instaInfo)

	if bot != nil {
		g.Go(func() error { return bot.Start(gctx) })
	}

	for _, ch := range orch.Channels() {
		logger.Info("Channel pipeline registered", zap.String("channel", string(ch)))
	}
	logger.Info("Lead router started",
		zap.String("email", string(emailInfo.Status.State)),
		zap.String("instagram", string(instaInfo.Status.State)),
		zap.Int("operators", len(scheduler.Roster())))

	return g.Wait()
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
