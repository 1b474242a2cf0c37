package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kingpin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	adb "github.com/d1ced/goadb"
)

const StdIoFilename = "-"

var (
	host = kingpin.Flag("host",
		"Address of the adb server.").
		Short('H').
		Envar(adb.EnvServerAddress).
		String()
	port = kingpin.Flag("port",
		"Port of the adb server.").
		Short('P').
		Envar(adb.EnvServerPort).
		Int()
	serial = kingpin.Flag("serial",
		"Connect to device by serial number.").
		Short('s').
		Envar("ANDROID_SERIAL").
		String()
	verbose = kingpin.Flag("verbose",
		"Log every request sent to the server.").
		Short('v').
		Bool()

	versionCommand = kingpin.Command("version",
		"Show the version of the adb server.")

	killCommand = kingpin.Command("kill-server",
		"Kill the adb server.")

	devicesCommand = kingpin.Command("devices",
		"List devices.")
	devicesLongFlag = devicesCommand.Flag("long",
		"Include extra detail about devices.").
		Short('l').
		Bool()

	trackCommand = kingpin.Command("track-devices",
		"Print device state changes until interrupted.")

	connectCommand = kingpin.Command("connect",
		"Connect to a device over TCP/IP.")
	connectHostArg = connectCommand.Arg("host",
		"host[:port] of the device.").
		Required().
		String()

	disconnectCommand = kingpin.Command("disconnect",
		"Disconnect a device connected over TCP/IP.")
	disconnectHostArg = disconnectCommand.Arg("host",
		"host[:port] of the device.").
		Required().
		String()

	rebootCommand = kingpin.Command("reboot",
		"Reboot the device.")
	rebootTargetArg = rebootCommand.Arg("target",
		"bootloader, recovery or sideload. Empty for a normal reboot.").
		Enum(adb.RebootBootloader, adb.RebootRecovery, adb.RebootSideload)

	shellCommand = kingpin.Command("shell",
		"Run a shell command on the device.")
	shellCommandArg = shellCommand.Arg("command",
		"Command to run on device.").
		Strings()

	logcatCommand = kingpin.Command("log",
		"Dump a raw log buffer of the device.")
	logcatNameArg = logcatCommand.Arg("name",
		"Log buffer: main, system, events or radio.").
		Default("main").
		String()

	forwardCommand = kingpin.Command("forward",
		"Forward")
	forwardListFlag = forwardCommand.Flag("list",
		"List forwards").
		Short('l').
		Bool()
	forwardNoRebindFlag = forwardCommand.Flag("no-rebind",
		"Fail if the local endpoint is already forwarded.").
		Bool()
	forwardRemoveFlag = forwardCommand.Flag("remove",
		"Remove the forward of the local endpoint.").
		Bool()
	forwardRemoveAllFlag = forwardCommand.Flag("remove-all",
		"Remove all forwards.").
		Bool()
	forwardLocalArg = forwardCommand.Arg("local",
		"Local endpoint, e.g. tcp:8080.").
		String()
	forwardRemoteArg = forwardCommand.Arg("remote",
		"Remote endpoint, e.g. localabstract:scrcpy.").
		String()

	pullCommand = kingpin.Command("pull",
		"Pull a file or directory from the device.")
	pullProgressFlag = pullCommand.Flag("progress",
		"Show progress.").
		Short('p').
		Bool()
	pullRemoteArg = pullCommand.Arg("remote",
		"Path of source file on device.").
		Required().
		String()
	pullLocalArg = pullCommand.Arg("local",
		"Path of destination file. If -, will write to stdout.").
		String()

	pushCommand = kingpin.Command("push",
		"Push a file or directory to the device.")
	pushProgressFlag = pushCommand.Flag("progress",
		"Show progress.").
		Short('p').
		Bool()
	pushLocalArg = pushCommand.Arg("local",
		"Path of source file. If -, will read from stdin.").
		Required().
		String()
	pushRemoteArg = pushCommand.Arg("remote",
		"Path of destination file on device.").
		Required().
		String()

	screencapCommand = kingpin.Command("screencap",
		"Save the raw framebuffer of the device.")
	screencapOutArg = screencapCommand.Arg("file",
		"Output file. If -, will write to stdout.").
		Default("screen.raw").
		String()
)

var client adb.HostServices

func main() {
	var exitCode int

	cmd := kingpin.Parse()
	client = newClient()

	switch cmd {
	case "version":
		exitCode = serverVersion()
	case "kill-server":
		exitCode = check(client.Kill())
	case "devices":
		exitCode = listDevices(*devicesLongFlag)
	case "track-devices":
		exitCode = trackDevices()
	case "connect":
		exitCode = connect(*connectHostArg, false)
	case "disconnect":
		exitCode = connect(*disconnectHostArg, true)
	case "reboot":
		exitCode = check(device().Reboot(*rebootTargetArg))
	case "shell":
		exitCode = runShellCommand(*shellCommandArg)
	case "log":
		exitCode = check(device().RunLogService(*logcatNameArg, &writerReceiver{w: os.Stdout}))
	case "forward":
		exitCode = forward()
	case "pull":
		exitCode = pull(*pullProgressFlag, *pullRemoteArg, *pullLocalArg)
	case "push":
		exitCode = push(*pushProgressFlag, *pushLocalArg, *pushRemoteArg)
	case "screencap":
		exitCode = screencap(*screencapOutArg)
	}

	os.Exit(exitCode)
}

func newClient() *adb.Client {
	cfg := adb.ConfigFromEnv()
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}

	logger := logrus.New()
	logger.Out = os.Stderr
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	cfg.Logger = logger
	return adb.New(cfg)
}

func device() *adb.Device {
	if *serial == "" {
		return client.AnyDevice()
	}
	return client.Device(*serial)
}

func check(err error) int {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func serverVersion() int {
	v, err := client.Version()
	if err != nil {
		return check(err)
	}
	fmt.Println("Android Debug Bridge version", v)
	return 0
}

func listDevices(long bool) int {
	devices, err := client.ListDevices()
	if err != nil {
		return check(err)
	}

	for _, device := range devices {
		if long {
			if !device.IsUSB() {
				fmt.Printf("%s\t%s product:%s model:%s device:%s\n",
					device.Serial, device.State, device.Product, device.Model, device.Name)
			} else {
				fmt.Printf("%s\t%s usb:%s product:%s model:%s device:%s\n",
					device.Serial, device.State, device.USB, device.Product, device.Model, device.Name)
			}
		} else {
			fmt.Printf("%s\t%s\n", device.Serial, device.State)
		}
	}

	return 0
}

func trackDevices() int {
	monitor := client.NewDeviceMonitor()
	if err := monitor.Start(); err != nil {
		return check(err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		monitor.Close()
	}()

	for event := range monitor.C() {
		fmt.Printf("[%s] %s\n", time.Now().Format(time.RFC3339), event)
	}
	return check(monitor.Err())
}

func connect(address string, disconnect bool) int {
	h, p := address, 5555
	if i := strings.LastIndex(address, ":"); i >= 0 {
		port, err := strconv.Atoi(address[i+1:])
		if err != nil {
			return check(errors.Errorf("invalid port in %q", address))
		}
		h, p = address[:i], port
	}
	if disconnect {
		return check(client.Disconnect(h, p))
	}
	return check(client.Connect(h, p))
}

func runShellCommand(commandAndArgs []string) int {
	if len(commandAndArgs) == 0 {
		fmt.Fprintln(os.Stderr, "error: no command")
		kingpin.Usage()
		return 1
	}

	command := commandAndArgs[0]
	var args []string

	if len(commandAndArgs) > 1 {
		args = commandAndArgs[1:]
	}

	output, err := device().Command(command, args...).Output()
	os.Stdout.Write(output)

	var exitErr adb.ShellExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode
	}
	return check(err)
}

func forward() int {
	d := device()
	switch {
	case *forwardListFlag:
		var (
			fws []adb.ForwardData
			err error
		)
		if *serial == "" {
			fws, err = client.ListForwards()
		} else {
			fws, err = d.ListForward()
		}
		if err != nil {
			return check(err)
		}
		for _, fw := range fws {
			fmt.Printf("%s %s %s\n", fw.Serial, fw.Local, fw.Remote)
		}
		return 0
	case *forwardRemoveAllFlag:
		return check(d.RemoveAllForwards())
	}

	local, err := adb.ParseForwardSpec(*forwardLocalArg)
	if err != nil {
		return check(err)
	}
	if *forwardRemoveFlag {
		return check(d.RemoveForward(local))
	}
	remote, err := adb.ParseForwardSpec(*forwardRemoteArg)
	if err != nil {
		return check(err)
	}
	return check(d.CreateForward(local, remote, !*forwardNoRebindFlag))
}

func pull(showProgress bool, remotePath, localPath string) int {
	if localPath == "" {
		localPath = path.Base(remotePath)
	}

	sync, err := device().OpenSync()
	if err != nil {
		return check(err)
	}
	defer sync.Close()

	monitor := newMonitor(showProgress)
	startTime := time.Now()
	if localPath == StdIoFilename {
		err = sync.PullWriter(remotePath, os.Stdout, monitor)
	} else if fi, serr := os.Stat(localPath); serr == nil && fi.IsDir() {
		err = pullInto(sync, remotePath, localPath, monitor)
	} else {
		err = sync.PullFile(remotePath, localPath, monitor)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error pulling file:", err)
		return 1
	}
	printStats(monitor, startTime)
	return 0
}

// pullInto pulls remotePath into the existing directory localDir.
func pullInto(sync *adb.SyncService, remotePath, localDir string, monitor *progressMonitor) error {
	st, err := sync.Stat(remotePath)
	if err != nil {
		return err
	}
	if st.IsDir() {
		return sync.Pull(remotePath, localDir, monitor)
	}
	return sync.PullFile(remotePath, filepath.Join(localDir, path.Base(remotePath)), monitor)
}

func push(showProgress bool, localPath, remotePath string) int {
	sync, err := device().OpenSync()
	if err != nil {
		return check(err)
	}
	defer sync.Close()

	monitor := newMonitor(showProgress)
	startTime := time.Now()
	if localPath == StdIoFilename {
		err = sync.PushReader(os.Stdin, remotePath, 0660, time.Now(), monitor)
	} else if st, serr := sync.Stat(remotePath); serr == nil && st.IsDir() {
		err = sync.Push([]string{localPath}, remotePath, monitor)
	} else {
		err = sync.PushFile(localPath, remotePath, monitor)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error pushing file:", err)
		return 1
	}
	printStats(monitor, startTime)
	return 0
}

// printStats prints the transfer speed and size to stderr.
func printStats(monitor *progressMonitor, startTime time.Time) {
	duration := time.Since(startTime)
	rate := int64(float64(monitor.done) / duration.Seconds())
	fmt.Fprintf(os.Stderr, "%d B/s (%d bytes in %s)\n", rate, monitor.done, duration)
}

func screencap(out string) int {
	fb, err := device().FrameBuffer()
	if err != nil {
		return check(err)
	}
	h := fb.Header
	fmt.Fprintf(os.Stderr, "%dx%d bpp:%d r:%d/%d g:%d/%d b:%d/%d a:%d/%d\n",
		h.Width, h.Height, h.Bpp,
		h.RedOffset, h.RedLength, h.GreenOffset, h.GreenLength,
		h.BlueOffset, h.BlueLength, h.AlphaOffset, h.AlphaLength)

	if out == StdIoFilename {
		_, err = os.Stdout.Write(fb.Data)
		return check(err)
	}
	return check(os.WriteFile(out, fb.Data, 0644))
}

// writerReceiver copies shell output to w.
type writerReceiver struct {
	adb.NullOutputReceiver
	w io.Writer
}

func (r *writerReceiver) AddOutput(data []byte) {
	r.w.Write(data)
}
