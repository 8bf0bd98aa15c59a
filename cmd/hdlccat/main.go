// Command hdlccat bridges a serial HDLC link to standard input and output:
// each line read from stdin is sent as a reliable frame, and every payload
// the link receives is written to stdout.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/mydefence/mdif/hdlc/dlc"
	"github.com/mydefence/mdif/hdlc/transport"
)

var (
	configFlag  = pflag.StringP("config", "c", "", "Path to a YAML configuration `file`.")
	deviceFlag  = pflag.StringP("device", "d", "", "Serial `port` to open, e.g. /dev/ttyUSB0.")
	baudFlag    = pflag.Int("baud", 0, "Line `rate`; overrides the config file.")
	windowFlag  = pflag.Int("window", 0, "Send window `size`; overrides the config file.")
	timerFlag   = pflag.Duration("timer", 0, "Retransmit/keep-alive tick `interval`; overrides the config file.")
	verboseFlag = pflag.BoolP("verbose", "v", false, "Log every frame at debug level.")
)

func main() {
	pflag.Parse()

	logger := log.New(os.Stderr)
	if *verboseFlag {
		logger.SetLevel(log.DebugLevel)
	}

	if err := run(logger); err != nil {
		logger.Fatal(err)
	}
}

func run(logger *log.Logger) error {
	fcfg, err := loadFileConfig(*configFlag)
	if err != nil {
		return err
	}
	if *deviceFlag != "" {
		fcfg.Device = *deviceFlag
	}
	if *baudFlag != 0 {
		fcfg.Baud = *baudFlag
	}
	if *windowFlag != 0 {
		fcfg.Window = *windowFlag
	}
	if *timerFlag != 0 {
		fcfg.TimerInterval = *timerFlag
	}
	if fcfg.Device == "" {
		return fmt.Errorf("hdlccat: no serial device given (use --device or a config file)")
	}
	if fcfg.TimerInterval == 0 {
		fcfg.TimerInterval = 500 * time.Millisecond
	}

	link, err := transport.OpenSerial(transport.Config{
		Device: fcfg.Device,
		Baud:   fcfg.Baud,
	}, logger.With("component", "serial"))
	if err != nil {
		return err
	}
	defer link.Close()

	timer := transport.NewTicker(fcfg.TimerInterval)

	stdout := bufio.NewWriter(os.Stdout)
	ctrl, err := dlc.New(fcfg.dlcConfig(logger.With("component", "dlc")), link, timer, dlc.Callbacks{
		OnRecv: func(payload []byte) {
			stdout.Write(payload)
			stdout.WriteByte('\n')
			stdout.Flush()
		},
		OnFrameSent: func(frame []byte) {
			logger.Debug("frame delivered", "len", len(frame))
		},
		OnReset: func(cause dlc.ResetCause) {
			logger.Warn("link reset", "cause", cause)
		},
		OnConnected: func() {
			logger.Info("link up")
		},
	})
	if err != nil {
		return err
	}
	timer.Bind(ctrl.OnTimeout)

	serveErr := make(chan error, 1)
	go func() { serveErr <- link.Serve(ctrl) }()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case sig := <-signals:
			logger.Info("received signal, closing", "signal", sig)
			ctrl.Close()
			return nil

		case err := <-serveErr:
			if err != nil {
				return fmt.Errorf("hdlccat: serial link failed: %w", err)
			}
			ctrl.Close()
			return nil

		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if err := ctrl.Send([]byte(line)); err != nil {
				logger.Error("send failed", "err", err)
			}
		}
	}
}
