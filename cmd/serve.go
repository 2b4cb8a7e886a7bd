package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/voxbridge/host/internal/config"
	"github.com/voxbridge/host/internal/daemon"
	bridgeerrors "github.com/voxbridge/host/internal/errors"
	"github.com/voxbridge/host/internal/gateway"
	"github.com/voxbridge/host/internal/handoff"
	"github.com/voxbridge/host/internal/monitor"
	"github.com/voxbridge/host/internal/portalloc"
	"github.com/voxbridge/host/internal/proxy"
	"github.com/voxbridge/host/internal/session"
	"github.com/voxbridge/host/internal/storage"
	"github.com/voxbridge/host/internal/supervisor"
	"github.com/voxbridge/host/internal/vxml"
)

const serveUsage = `Usage: voxbridge serve [options]

Handles one CGI invocation from the hosting web server:
  - a proxyfor continuation relays to the worker on that port
  - a first invocation detaches a conversation worker and answers with a
    redirect document pointing at it
  - the detached worker then serves the conversation until it ends

Options:
  --config <path>   Config file (default: ~/.voxbridge/config.toml)
`

func runServe(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Config file path")
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, serveUsage) }
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	cfg.Apply()

	inv, err := gateway.FromEnv(os.Stdin)
	if err != nil {
		gateway.WriteResponse(stdout, vxml.ContentType, vxml.ErrorDocument(err.Error()))
		return 0
	}

	logger := log.New(stderr, "voxbridge: ", log.LstdFlags)

	// Tunnel continuations never touch the supervisor: relay and done.
	if port, remainder, ok, perr := inv.ProxyTarget(); perr != nil {
		gateway.WriteResponse(stdout, vxml.ContentType, vxml.ErrorDocument(bridgeerrors.GetMessage(perr)))
		return 0
	} else if ok {
		resp := proxy.New(logger).Relay(port, remainder, inv.ContentType, inv.Body)
		gateway.WriteResponse(stdout, resp.ContentType, string(resp.Body))
		return 0
	}

	det, err := supervisor.Detach(supervisor.Options{WorkerLog: cfg.WorkerLog})
	if err != nil {
		gateway.WriteResponse(stdout, vxml.ContentType, vxml.ErrorDocument(bridgeerrors.GetMessage(err)))
		return 1
	}

	switch det.Role {
	case supervisor.RoleInvoker:
		defer det.HandoffRead.Close()
		target, err := handoff.Receive(det.HandoffRead, cfg.HandoffWait())
		if err != nil {
			logger.Printf("handoff failed: %v", err)
			gateway.WriteResponse(stdout, vxml.ContentType, vxml.ErrorDocument(bridgeerrors.GetMessage(err)))
			return 0
		}
		gateway.WriteResponse(stdout, vxml.ContentType, vxml.RedirectDocument(target))
		return 0

	case supervisor.RoleWorker:
		// Detached: stdout/stderr now point at the worker log.
		return runWorker(cfg, inv, det.HandoffWrite, log.New(os.Stderr, "worker: ", log.LstdFlags))

	default:
		fmt.Fprintf(stderr, "Error: unknown detach role %d\n", det.Role)
		return 1
	}
}

// runWorker is the detached side: bind a port, report the endpoint through
// the handoff pipe, then serve the conversation to completion.
func runWorker(cfg *config.Config, inv *gateway.Invocation, handoffWrite *os.File, logger *log.Logger) int {
	alloc, err := portalloc.Allocate(cfg.MinPort, cfg.MaxPort)
	if err != nil {
		logger.Printf("port allocation failed: %v", err)
		handoffWrite.Close() // invoker sees EOF and answers with an error
		return 1
	}
	defer alloc.Close()

	host := cfg.Host
	if host == "" {
		host = inv.Host
	}
	ep := daemon.Endpoint{
		Host:     host,
		Port:     alloc.Port,
		Proxied:  alloc.Fallback,
		FrontURL: inv.SelfURL,
	}

	if err := handoff.Send(handoffWrite, ep.RedirectTarget()); err != nil {
		logger.Printf("handoff send failed: %v", err)
		return 1
	}

	var store *storage.Store
	if cfg.CallDB != "" {
		store = storage.OpenBestEffort(cfg.CallDB, logger)
	}
	if store != nil {
		defer store.Close()
	}

	d := daemon.New(alloc.Listener, cfg.IdleTimeout(), logger)
	defer d.Close()

	events := &lateEvents{}
	opts := session.Options{Logger: logger, Events: events}
	if store != nil {
		opts.Turns = store
	}
	sess := session.New(d, ep, opts)

	mon := monitor.NewServer(monitor.SocketPath(cfg.RunDir, sess.ID()), logger)
	if err := mon.Start(); err != nil {
		// The conversation outranks its observability.
		logger.Printf("monitor disabled: %v", err)
	} else {
		events.bind(mon)
		defer mon.Stop()
	}

	if store != nil {
		if err := store.StartCall(sess.ID(), ep.Mode(), ep.Port); err != nil {
			logger.Printf("call record failed: %v", err)
		}
	}
	logger.Printf("conversation %s listening on port %d (%s)", sess.ID(), ep.Port, ep.Mode())

	if err := sess.Begin(); err != nil {
		logger.Printf("caller never arrived: %v", err)
		endCall(store, sess.ID(), "abandoned", logger)
		return 0
	}

	outcome := "completed"
	if err := converse(sess); err != nil {
		logger.Printf("conversation %s ended early: %v", sess.ID(), err)
		sess.Abandon()
		outcome = "abandoned"
	}
	endCall(store, sess.ID(), outcome, logger)
	logger.Printf("conversation %s %s after %d turns", sess.ID(), outcome, sess.TurnsCompleted())
	return 0
}

// converse is the conversation application served to each caller: a short
// voice feedback survey exercising prompt, grammar, pause, and capture turns.
func converse(sess *session.Session) error {
	sess.Speak("Welcome to the feedback line.")
	sess.Pause(500)

	rating, err := sess.Ask(session.InputSpec{
		Prompt:  "On a scale of one to five, how was your experience?",
		Grammar: "one | two | three | four | five",
		NoInput: "Sorry, I did not hear you. Please say a number from one to five.",
		NoMatch: "Please answer with a number from one to five.",
	})
	if err != nil {
		return err
	}

	sess.Speak(fmt.Sprintf("You said %s.", rating))
	rec, err := sess.Record(session.RecordSpec{
		Prompt:  "After the beep, leave any additional comments, then press pound.",
		MaxTime: "60s",
		Beep:    true,
	})
	if err != nil && !bridgeerrors.HasCode(err, bridgeerrors.CodeRecordBadUpload) {
		return err
	}
	if rec != nil {
		sess.Speak(fmt.Sprintf("Got your message, %d bytes.", len(rec.Payload)))
	}

	sess.Speak("Thank you for your feedback. Goodbye.")
	return sess.End(session.EndSpec{})
}

func endCall(store *storage.Store, id, outcome string, logger *log.Logger) {
	if store == nil {
		return
	}
	if err := store.EndCall(id, outcome); err != nil {
		logger.Printf("call record failed: %v", err)
	}
}

// lateEvents defers the publisher binding: the monitor socket is named after
// the conversation ID, which exists only once the session does.
type lateEvents struct {
	mu sync.Mutex
	p  session.Publisher
}

func (l *lateEvents) bind(p session.Publisher) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.p = p
}

func (l *lateEvents) Publish(ev session.Event) {
	l.mu.Lock()
	p := l.p
	l.mu.Unlock()
	if p != nil {
		p.Publish(ev)
	}
}
