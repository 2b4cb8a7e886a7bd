// Package supervisor detaches the conversation worker from the invoking
// CGI request.
//
// Go has no fork(), so detachment is a staged re-exec: the invoker spawns
// the same binary as an intermediate stage, the intermediate spawns the real
// worker in a new session (Setsid) and exits immediately, and the worker is
// reparented to init. The invoker reaps only the short-lived intermediate,
// so the hosting request server never waits on the long-lived worker. The
// handoff pipe's write end rides both spawns as fd 3.
//
// Worker standard streams are redirected at spawn time: stdin from
// /dev/null, stdout and stderr to the worker log file (or /dev/null when no
// log is configured). The worker therefore never touches the invoker's CGI
// response stream.
package supervisor

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/voxbridge/host/internal/errors"
	"github.com/voxbridge/host/internal/handoff"
)

// stageEnv marks which detach stage a process is running. Unset means the
// invoker; the two stage values below mark the re-exec'd processes.
const stageEnv = "VOXBRIDGE_SPAWN_STAGE"

const (
	stageIntermediate = "intermediate"
	stageWorker       = "worker"
)

// Role tells the caller which side of the detach it is on.
type Role int

const (
	// RoleInvoker should read the handoff, emit the redirect, and exit.
	RoleInvoker Role = iota
	// RoleWorker should allocate a port, report it, and serve the
	// conversation.
	RoleWorker
)

// Detached is the outcome of a successful Detach.
type Detached struct {
	Role Role

	// HandoffRead is the pipe read end. Set only for RoleInvoker.
	HandoffRead *os.File

	// HandoffWrite is the inherited pipe write end. Set only for
	// RoleWorker.
	HandoffWrite *os.File
}

// Options configures the detach.
type Options struct {
	// WorkerLog receives the worker's stdout and stderr. Empty means
	// /dev/null.
	WorkerLog string

	// Args are the arguments (without the program name) passed to the
	// re-exec'd stages. Defaults to os.Args[1:].
	Args []string
}

// Detach performs the double-detach and reports the caller's role.
//
// In the intermediate stage Detach never returns: it spawns the worker and
// exits the process. Every failure here is fatal to the conversation; there
// is no degraded mode in which a half-detached worker serves traffic.
func Detach(opts Options) (*Detached, error) {
	args := opts.Args
	if args == nil {
		args = os.Args[1:]
	}

	switch os.Getenv(stageEnv) {
	case stageWorker:
		w, err := handoff.FromWorker()
		if err != nil {
			return nil, err
		}
		return &Detached{Role: RoleWorker, HandoffWrite: w}, nil

	case stageIntermediate:
		if err := respawnWorker(args, opts.WorkerLog); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
		panic("unreachable")

	default:
		return spawnIntermediate(args, opts.WorkerLog)
	}
}

// spawnIntermediate runs in the invoker: create the handoff pipe and start
// the intermediate stage, then reap it. The intermediate exits as soon as
// the worker is started, so the Wait here is short and leaves no zombie.
func spawnIntermediate(args []string, workerLog string) (*Detached, error) {
	r, w, err := handoff.New()
	if err != nil {
		return nil, errors.SpawnExecFailed("intermediate", err)
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, errors.SpawnNoExecutable(err)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.SpawnRedirectFailed(err)
	}
	defer devNull.Close()

	cmd := stagedCommand(exe, args, stageIntermediate, w, devNull, devNull, devNull)
	if err := cmd.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, errors.SpawnExecFailed("intermediate", err)
	}

	// The invoker's copy of the write end must close so a dead worker
	// surfaces as EOF on the read end instead of a silent hang.
	w.Close()

	if err := reapIntermediate(cmd, r); err != nil {
		return nil, err
	}

	return &Detached{Role: RoleInvoker, HandoffRead: r}, nil
}

// reapIntermediate waits for the intermediate stage. A non-zero exit means
// that stage failed before it could orphan a worker.
func reapIntermediate(cmd *exec.Cmd, handoffRead *os.File) error {
	if err := cmd.Wait(); err != nil {
		handoffRead.Close()
		return errors.SpawnExecFailed("intermediate", err)
	}
	return nil
}

// respawnWorker runs in the intermediate: start the worker stage in a new
// session with its streams redirected, release it, and let the intermediate
// exit so the worker is orphaned to init.
func respawnWorker(args []string, workerLog string) error {
	pipe := os.NewFile(handoff.WorkerFD, "handoff")
	if pipe == nil {
		return errors.HandoffNoPipe()
	}

	exe, err := os.Executable()
	if err != nil {
		return errors.SpawnNoExecutable(err)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return errors.SpawnRedirectFailed(err)
	}
	defer devNull.Close()

	logOut := devNull
	if workerLog != "" {
		if f, err := os.OpenFile(workerLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
			logOut = f
			defer f.Close()
		}
	}

	cmd := stagedCommand(exe, args, stageWorker, pipe, devNull, logOut, logOut)
	if err := cmd.Start(); err != nil {
		return errors.SpawnExecFailed("worker", err)
	}
	return cmd.Process.Release()
}

// stagedCommand builds the re-exec command for a detach stage: stage marker
// in the environment, handoff pipe as fd 3, streams redirected, and a fresh
// session so neither stage shares the invoker's controlling terminal.
func stagedCommand(exe string, args []string, stage string, pipe, stdin, stdout, stderr *os.File) *exec.Cmd {
	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), stageEnv+"="+stage)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.ExtraFiles = []*os.File{pipe}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd
}
