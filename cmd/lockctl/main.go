//go:build linux

// lockctl is a command-line demo of the smartlock-core client: it
// scans for a lock by serial suffix, drives the secure handshake, and
// issues a single lock operation before exiting.
//
// Usage:
//
//	lockctl [options] <open|close|pull|state|settings|version>
//
// Options:
//
//	-serial     Lock serial suffix to scan for (required)
//	-cert       Base64-encoded access certificate
//	-devicekey  Base64-encoded uncompressed P-256 device public key
//	-param      Lock parameter: none, auto, force, without-pull (default: auto)
//	-timeout    Overall connect timeout (default: 30s)
//	-verbose    Enable debug-level logging
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lockcore/smartlock-core/pkg/config"
	lockcrypto "github.com/lockcore/smartlock-core/pkg/crypto"
	"github.com/lockcore/smartlock-core/pkg/lockapi"
	"github.com/lockcore/smartlock-core/pkg/supervisor"
	"github.com/lockcore/smartlock-core/pkg/transport"
	"github.com/pion/logging"
)

const (
	defaultServiceUUID    = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	defaultSendCharUUID   = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	defaultSecureCharUUID = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
	defaultIndicateUUID   = "6e400004-b5a3-f393-e0a9-e50e24dcca9e"
	defaultNotifyUUID     = "6e400005-b5a3-f393-e0a9-e50e24dcca9e"
)

type consoleListener struct {
	log logging.LeveledLogger
}

func (l *consoleListener) OnConnectionChanged(connecting, connected bool) {
	l.log.Infof("connection changed: connecting=%v connected=%v", connecting, connected)
}

func (l *consoleListener) OnLockStatusChanged(state, status byte) {
	l.log.Infof("lock status changed: state=%#x status=%#x", state, status)
}

func (l *consoleListener) OnNotification(command byte, payload []byte) {
	l.log.Debugf("notification: command=%#x payload=%x", command, payload)
}

func (l *consoleListener) OnError(err error) {
	l.log.Errorf("supervisor error: %v", err)
}

func parseParam(s string) (config.LockParam, error) {
	switch s {
	case "", "auto":
		return config.ParamAuto, nil
	case "none":
		return config.ParamNone, nil
	case "force":
		return config.ParamForce, nil
	case "without-pull":
		return config.ParamWithoutPull, nil
	default:
		return 0, fmt.Errorf("unknown -param %q", s)
	}
}

func main() {
	serial := flag.String("serial", "", "lock serial suffix to scan for")
	certB64 := flag.String("cert", "", "base64-encoded access certificate")
	deviceKeyB64 := flag.String("devicekey", "", "base64-encoded device public key")
	paramFlag := flag.String("param", "auto", "lock parameter: none, auto, force, without-pull")
	timeout := flag.Duration("timeout", 30*time.Second, "overall connect timeout")
	verbose := flag.Bool("verbose", false, "enable debug-level logging")
	flag.Parse()

	if *serial == "" || flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: lockctl -serial <suffix> [-cert ... -devicekey ...] <open|close|pull|state|settings|version>")
		os.Exit(2)
	}
	action := flag.Arg(0)

	param, err := parseParam(*paramFlag)
	if err != nil {
		log.Fatalf("lockctl: %v", err)
	}

	factory := logging.NewDefaultLoggerFactory()
	if *verbose {
		factory.DefaultLogLevel = logging.LogLevelDebug
	}
	logger := factory.NewLogger("lockctl")

	var cert *lockcrypto.DeviceCertificate
	if *certB64 != "" {
		cert = &lockcrypto.DeviceCertificate{
			CertificateBase64:     *certB64,
			DevicePublicKeyBase64: *deviceKeyB64,
		}
		if err := cert.Decode(); err != nil {
			log.Fatalf("lockctl: decode certificate: %v", err)
		}
	}

	central := transport.NewBlueZCentral(defaultServiceUUID, transport.CharacteristicUUIDs{
		Send:         defaultSendCharUUID,
		SecureNotify: defaultSecureCharUUID,
		LockIndicate: defaultIndicateUUID,
		LockNotify:   defaultNotifyUUID,
	})
	keystore := lockcrypto.NewMemoryKeystore()
	listener := &consoleListener{log: logger}

	sup := supervisor.New(central, keystore, cert, config.Config{}, nil, listener, factory)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	logger.Infof("scanning for lock %q", *serial)
	if err := sup.Connect(ctx, *serial); err != nil {
		log.Fatalf("lockctl: connect: %v", err)
	}
	defer sup.Close()

	api, err := sup.API()
	if err != nil {
		log.Fatalf("lockctl: %v", err)
	}

	if err := runAction(ctx, api, action, param); err != nil {
		log.Fatalf("lockctl: %s: %v", action, err)
	}
}

func runAction(ctx context.Context, api *lockapi.LockApi, action string, param config.LockParam) error {
	switch action {
	case "open":
		return api.OpenLock(ctx, param)
	case "close":
		return api.CloseLock(ctx, param)
	case "pull":
		return api.PullSpring(ctx, param)
	case "state":
		return api.GetState(ctx)
	case "settings":
		settings, err := api.GetSettings(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%+v\n", settings)
		return nil
	case "version":
		version, err := api.GetVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Println(version.String())
		return nil
	default:
		return errors.New("unknown action")
	}
}
