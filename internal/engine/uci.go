package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/notnil/chess"
)

// UCIEngine speaks the UCI protocol to a child process.
type UCIEngine struct {
	path string
	args []string

	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   *bufio.Reader
}

func NewUCIEngine(path string, args []string) *UCIEngine {
	return &UCIEngine{path: path, args: args}
}

// Start launches the process. ctx bounds the lifetime of the process, not
// just the handshake.
func (e *UCIEngine) Start(ctx context.Context) error {
	e.cmd = exec.CommandContext(ctx, e.path, e.args...)
	stdout, err := e.cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return err
	}
	e.stdin = stdin
	e.out = bufio.NewReader(stdout)

	if err := e.cmd.Start(); err != nil {
		return err
	}
	if err := e.Send("uci"); err != nil {
		return err
	}
	if _, err := e.ReadUntilPrefix(ctx, "uciok", 5*time.Second); err != nil {
		return err
	}
	return nil
}

func (e *UCIEngine) Close() error {
	if e.cmd == nil {
		return nil
	}
	if e.stdin != nil {
		_ = e.Send("quit")
		_ = e.stdin.Close()
	}

	done := make(chan error, 1)
	go func() { done <- e.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		if e.cmd.Process != nil {
			_ = e.cmd.Process.Kill()
		}
		return <-done
	}
}

func (e *UCIEngine) Send(line string) error {
	if e.stdin == nil {
		return fmt.Errorf("engine not started")
	}
	_, err := io.WriteString(e.stdin, line+"\n")
	return err
}

// ReadUntilPrefix reads lines until one starts with prefix. The read itself
// runs in a goroutine so a silent engine cannot outlive the timeout.
func (e *UCIEngine) ReadUntilPrefix(ctx context.Context, prefix string, timeout time.Duration) (string, error) {
	if e.out == nil {
		return "", fmt.Errorf("engine not started")
	}
	type lineResult struct {
		line string
		err  error
	}
	found := make(chan lineResult, 1)
	go func() {
		for {
			line, err := e.out.ReadString('\n')
			if err != nil {
				found <- lineResult{err: err}
				return
			}
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, prefix) {
				found <- lineResult{line: line}
				return
			}
		}
	}()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-deadline.C:
		return "", fmt.Errorf("timeout waiting for %q", prefix)
	case res := <-found:
		return res.line, res.err
	}
}

func (e *UCIEngine) IsReady(ctx context.Context) error {
	if err := e.Send("isready"); err != nil {
		return err
	}
	_, err := e.ReadUntilPrefix(ctx, "readyok", 5*time.Second)
	return err
}

func (e *UCIEngine) NewGame(ctx context.Context) error {
	if err := e.Send("ucinewgame"); err != nil {
		return err
	}
	return e.IsReady(ctx)
}

// BestMove searches fen for movetimeMS and returns the engine's move in UCI
// notation.
func (e *UCIEngine) BestMove(ctx context.Context, fen string, movetimeMS int) (string, error) {
	if err := e.Send("position fen " + fen); err != nil {
		return "", err
	}
	if err := e.Send(fmt.Sprintf("go movetime %d", movetimeMS)); err != nil {
		return "", err
	}
	wait := time.Duration(movetimeMS)*time.Millisecond + 10*time.Second
	line, err := e.ReadUntilPrefix(ctx, "bestmove ", wait)
	if err != nil {
		return "", err
	}
	parts := strings.Fields(line)
	if len(parts) < 2 || parts[1] == "(none)" || parts[1] == "0000" {
		return "", fmt.Errorf("malformed bestmove: %q", line)
	}
	return parts[1], nil
}

func applyInit(ctx context.Context, e *UCIEngine, init string) error {
	for _, line := range strings.Split(init, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := e.Send(line); err != nil {
			return err
		}
	}
	return e.IsReady(ctx)
}

// UCIProposer lets a local UCI engine take part as a model. The process is
// started on first use and shared by every game; searches are serialised.
type UCIProposer struct {
	log        *slog.Logger
	path       string
	args       []string
	init       string
	movetimeMS int

	mu  sync.Mutex
	eng *UCIEngine
}

func NewUCIProposer(log *slog.Logger, path string, args []string, init string, movetimeMS int) *UCIProposer {
	if log == nil {
		log = slog.Default()
	}
	if movetimeMS <= 0 {
		movetimeMS = 100
	}
	return &UCIProposer{
		log:        log.With(slog.String("component", "uci"), slog.String("engine", path)),
		path:       path,
		args:       args,
		init:       init,
		movetimeMS: movetimeMS,
	}
}

// Propose answers in the arena's declaration format so arbitration takes the
// first step.
func (u *UCIProposer) Propose(ctx context.Context, req ProposalRequest) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.eng == nil {
		eng := NewUCIEngine(u.path, u.args)
		// the process outlives this request, so it gets its own context.
		if err := eng.Start(context.Background()); err != nil {
			_ = eng.Close()
			return "", fmt.Errorf("start uci engine: %w", err)
		}
		if err := applyInit(ctx, eng, u.init); err != nil {
			_ = eng.Close()
			return "", fmt.Errorf("init uci engine: %w", err)
		}
		u.eng = eng
		u.log.Info("uci_engine_started")
	}

	best, err := u.eng.BestMove(ctx, req.FEN, u.movetimeMS)
	if err != nil {
		// the engine may be wedged mid-search; restart it next time.
		_ = u.eng.Close()
		u.eng = nil
		return "", err
	}
	san, err := uciToSAN(req.FEN, best)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("My move: %q", san), nil
}

func (u *UCIProposer) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.eng == nil {
		return nil
	}
	err := u.eng.Close()
	u.eng = nil
	return err
}

func uciToSAN(fen, move string) (string, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return "", err
	}
	pos := chess.NewGame(opt).Position()
	mv, err := chess.UCINotation{}.Decode(pos, move)
	if err != nil {
		return "", fmt.Errorf("illegal move from engine: %s (%w)", move, err)
	}
	return chess.AlgebraicNotation{}.Encode(pos, mv), nil
}
