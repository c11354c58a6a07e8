package gateway

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// killPattern matches a single kill-by-pid invocation, with or without sudo
// (spec §4.6).
var killPattern = regexp.MustCompile(`^(sudo\s+)?kill\s+-\d+\s+\d+$`)

// ExecuteCommand runs one command for an authenticated session through the
// Command Queue, or engages the kill workflow when it matches the
// kill-process pattern (spec §4.6).
func (c *Core) ExecuteCommand(transport Transport, sessionID string, params ExecuteCommandParams, ack func(CommandResult)) {
	session := c.Registry.Get(sessionID)
	if session == nil || !session.Authenticated() {
		ack(CommandResult{Error: fmt.Errorf("no authenticated session")})
		return
	}
	session.TouchCommand()

	if killPattern.MatchString(strings.TrimSpace(params.Command)) {
		c.runKillWorkflow(session, transport, params)
		return
	}

	c.Queue.Enqueue(&queueEntry{
		session:       session,
		command:       params.Command,
		background:    params.Background,
		streamPartial: params.Stream,
		executionID:   params.ExecutionID,
		transport:     transport,
		callback:      ack,
	})
}

// ExecuteBatch runs commands.length commands in chunks of three, chunks
// sequential, members of a chunk concurrent, emitting a single
// command-batch-result event when every chunk has completed (spec §4.6).
func (c *Core) ExecuteBatch(transport Transport, sessionID string, params ExecuteBatchParams) {
	session := c.Registry.Get(sessionID)
	if session == nil || !session.Authenticated() {
		_ = transport.Emit(EventBatchResult, map[string]any{
			"batchId": params.BatchID,
			"results": []BatchResultEntry{},
			"error":   "no authenticated session",
		})
		return
	}

	const chunkSize = 3
	results := make([]BatchResultEntry, len(params.Commands))

	for start := 0; start < len(params.Commands); start += chunkSize {
		end := start + chunkSize
		if end > len(params.Commands) {
			end = len(params.Commands)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			i := i
			wg.Add(1)
			c.Queue.Enqueue(&queueEntry{
				session:    session,
				command:    params.Commands[i],
				background: params.Background,
				callback: func(res CommandResult) {
					defer wg.Done()
					entry := BatchResultEntry{
						Command:    params.Commands[i],
						Output:     res.Output,
						Background: params.Background,
					}
					if res.Error != nil {
						entry.Error = res.Error.Error()
					}
					results[i] = entry
				},
			})
		}
		wg.Wait()
	}

	_ = transport.Emit(EventBatchResult, map[string]any{
		"batchId": params.BatchID,
		"results": results,
	})
}

// runKillWorkflow implements spec §4.6's kill-process sub-flow: enqueue the
// kill, classify permission failures, verify death, then report a fresh
// process snapshot.
func (c *Core) runKillWorkflow(session *Session, transport Transport, params ExecuteCommandParams) {
	pid := killPID(params.Command)

	c.Queue.Enqueue(&queueEntry{
		session: session,
		command: params.Command,
		callback: func(res CommandResult) {
			if session.Destroyed() {
				return
			}
			if needsElevation(res.ErrorOutput) {
				_ = transport.Emit(EventCommandError, commandErrorPayload(params.Command, "Permission denied — elevation required", true))
				c.emitShellNotice(session, "\x1b[31mPermission denied: elevation required to kill process "+pid+"\x1b[0m\r\n")
				return
			}
			if res.Error != nil {
				_ = transport.Emit(EventCommandError, commandErrorPayload(params.Command, res.Error.Error(), false))
				return
			}
			c.verifyKill(session, transport, pid)
		},
	})
}

// verifyKill checks whether pid still exists and reports the outcome.
func (c *Core) verifyKill(session *Session, transport Transport, pid string) {
	verifyCmd := fmt.Sprintf("ps -p %s > /dev/null 2>&1; echo $?", pid)
	c.Queue.Enqueue(&queueEntry{
		session:    session,
		command:    verifyCmd,
		background: true,
		callback: func(res CommandResult) {
			if session.Destroyed() {
				return
			}
			success := strings.TrimSpace(res.Output) != "0"
			_ = transport.Emit(EventProcessKilled, map[string]any{
				"pid":     pid,
				"success": success,
			})
			if success {
				c.emitShellNotice(session, "\x1b[32mProcess "+pid+" terminated\x1b[0m\r\n")
			} else {
				c.emitShellNotice(session, "\x1b[31mProcess "+pid+" is still running\x1b[0m\r\n")
			}
			c.reportProcessStats(session, transport)
		},
	})
}

// reportProcessStats enqueues a fresh top-20-by-CPU snapshot.
func (c *Core) reportProcessStats(session *Session, transport Transport) {
	c.Queue.Enqueue(&queueEntry{
		session:    session,
		command:    "ps aux --sort=-%cpu | head -20",
		background: true,
		callback: func(res CommandResult) {
			if session.Destroyed() {
				return
			}
			_ = transport.Emit(EventProcessStats, map[string]string{"data": res.Output})
		},
	})
}

// emitShellNotice writes a notice directly to the user's open shell stdin,
// the same path the "user-visible ANSI-red notice through the shell output
// channel" language in spec §4.6 describes — it appears in the terminal
// exactly as if the user had run `echo` themselves.
func (c *Core) emitShellNotice(session *Session, notice string) {
	sh := session.shellOrNil()
	if sh == nil {
		return
	}
	_, _ = sh.stdin.Write([]byte("echo -e \"" + notice + "\"\n"))
}

// commandErrorPayload builds the `{command, error, needsElevation}` shape
// spec §6 requires for a command-error event.
func commandErrorPayload(command, errMsg string, needsElevation bool) map[string]any {
	return map[string]any{
		"command":        command,
		"error":          errMsg,
		"needsElevation": needsElevation,
	}
}

// needsElevation reports whether stderr indicates a permission failure.
func needsElevation(stderr string) bool {
	return strings.Contains(stderr, "Operation not permitted") || strings.Contains(stderr, "Permission denied")
}

// killPID extracts the pid argument from a validated kill command.
func killPID(command string) string {
	fields := strings.Fields(strings.TrimSpace(command))
	if len(fields) == 0 {
		return ""
	}
	last := fields[len(fields)-1]
	if _, err := strconv.Atoi(last); err != nil {
		return ""
	}
	return last
}
