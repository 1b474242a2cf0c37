// Package extra holds helpers built on top of shell commands.
package extra

import (
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"

	adb "github.com/d1ced/goadb"
)

// Shell runs a command on a device and returns its output.
// *adb.Device implements it.
type Shell interface {
	RunCommand(cmd string, args ...string) (string, error)
}

var _ Shell = (*adb.Device)(nil)

// Process is one row of ps output.
type Process struct {
	User string
	Pid  int
	Name string
}

// ListProcesses lists the processes running on d.
func ListProcesses(d Shell) ([]Process, error) {
	// Since Android 8 plain ps only lists the processes of the shell.
	out, err := d.RunCommand("ps", "-A")
	if err == nil {
		procs, perr := parseProcesses(out)
		if perr == nil && len(procs) > 1 {
			return procs, nil
		}
	} else if !adb.HasShellErrCode(err, adb.UnknownOption) {
		return nil, err
	}

	out, err = d.RunCommand("ps")
	if err != nil {
		return nil, err
	}
	return parseProcesses(out)
}

// parseProcesses reads ps output such as
//
//	USER  PID  PPID  VSIZE  RSS  WCHAN     PC         NAME
//	root    1     0    684  540  ffffffff  00000000 S /init
//	root    2     0      0    0  ffffffff  00000000 S kthreadd
//
// Older versions print a state column without a header, so the name is
// always the last field.
func parseProcesses(out string) ([]Process, error) {
	var header []string
	userCol, pidCol := -1, -1
	procs := []Process{}

	for _, line := range strings.Split(out, "\n") {
		cols := strings.Fields(line)
		if len(cols) == 0 {
			continue
		}
		if header == nil {
			header = cols
			for i, h := range header {
				switch strings.ToUpper(h) {
				case "USER":
					userCol = i
				case "PID":
					pidCol = i
				}
			}
			continue
		}
		if len(cols) < len(header) {
			return nil, errors.Errorf("unexpected ps line: %q", line)
		}
		if pidCol < 0 {
			continue
		}
		pid, _ := strconv.Atoi(cols[pidCol])
		if pid == 0 {
			continue
		}
		p := Process{Pid: pid, Name: cols[len(cols)-1]}
		if userCol >= 0 {
			p.User = cols[userCol]
		}
		procs = append(procs, p)
	}
	if header == nil {
		return nil, errors.New("ps printed nothing")
	}
	return procs, nil
}

// KillProcessByName sends sig to every process called name.
func KillProcessByName(d Shell, name string, sig syscall.Signal) error {
	procs, err := ListProcesses(d)
	if err != nil {
		return err
	}
	for _, p := range procs {
		if p.Name != name {
			continue
		}
		out, kerr := d.RunCommand("kill", "-"+strconv.Itoa(int(sig)), strconv.Itoa(p.Pid))
		if kerr != nil {
			return kerr
		}
		// kill is silent on success
		if out = strings.TrimSpace(out); out != "" {
			return errors.Errorf("kill %d: %s", p.Pid, out)
		}
	}
	return nil
}
