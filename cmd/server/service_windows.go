//go:build windows

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/eventlog"
	"golang.org/x/sys/windows/svc/mgr"
)

const serviceName = "AuthflowHost"
const serviceDisplayName = "Authflow Web Host"
const serviceDescription = "Browser sign-in through the authorization code flow"

// hostService implements svc.Handler
type hostService struct {
	configPath string
}

func (s *hostService) Execute(_ []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	const cmdsAccepted = svc.AcceptStop | svc.AcceptShutdown
	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, s.configPath)
	}()

	changes <- svc.Status{State: svc.Running, Accepts: cmdsAccepted}

	for {
		select {
		case err := <-done:
			if err != nil {
				reportEvent(err)
				return false, 1
			}
			return false, 0
		case c := <-r:
			switch c.Cmd {
			case svc.Stop, svc.Shutdown:
				changes <- svc.Status{State: svc.StopPending}
				cancel()
				if err := <-done; err != nil {
					reportEvent(err)
				}
				return false, 0
			case svc.Interrogate:
				changes <- c.CurrentStatus
			}
		}
	}
}

func reportEvent(err error) {
	elog, errOpen := eventlog.Open(serviceName)
	if errOpen != nil {
		return
	}
	defer func() { _ = elog.Close() }()
	_ = elog.Error(1, fmt.Sprintf("web host error: %v", err))
}

// runService runs the host under the service control manager.
func runService(configPath string) error {
	elog, err := eventlog.Open(serviceName)
	if err != nil {
		return err
	}
	defer func() { _ = elog.Close() }()

	_ = elog.Info(1, fmt.Sprintf("Starting %s service", serviceName))
	if err = svc.Run(serviceName, &hostService{configPath: configPath}); err != nil {
		_ = elog.Error(1, fmt.Sprintf("Service failed: %v", err))
		return err
	}
	_ = elog.Info(1, fmt.Sprintf("%s service stopped", serviceName))
	return nil
}

func installService(configPath string) error {
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	exePath = filepath.Clean(exePath)

	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to service manager: %w", err)
	}
	defer func() { _ = m.Disconnect() }()

	if s, errOpen := m.OpenService(serviceName); errOpen == nil {
		_ = s.Close()
		return fmt.Errorf("service %s already exists", serviceName)
	}

	args := []string{"-service"}
	if configPath != "" {
		abs, errAbs := filepath.Abs(configPath)
		if errAbs != nil {
			return errAbs
		}
		args = append(args, "-config", abs)
	}

	s, err := m.CreateService(serviceName, exePath, mgr.Config{
		DisplayName:  serviceDisplayName,
		Description:  serviceDescription,
		StartType:    mgr.StartAutomatic,
		ErrorControl: mgr.ErrorNormal,
	}, args...)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer func() { _ = s.Close() }()

	_ = s.SetRecoveryActions([]mgr.RecoveryAction{
		{Type: mgr.ServiceRestart, Delay: 5 * time.Second},
		{Type: mgr.ServiceRestart, Delay: 30 * time.Second},
	}, 86400)
	// May already exist.
	_ = eventlog.InstallAsEventCreate(serviceName, eventlog.Error|eventlog.Warning|eventlog.Info)

	fmt.Printf("Service %s installed\n", serviceName)
	return nil
}

func openService() (*mgr.Mgr, *mgr.Service, error) {
	m, err := mgr.Connect()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to service manager: %w", err)
	}
	s, err := m.OpenService(serviceName)
	if err != nil {
		_ = m.Disconnect()
		return nil, nil, fmt.Errorf("service %s not found: %w", serviceName, err)
	}
	return m, s, nil
}

func uninstallService() error {
	m, s, err := openService()
	if err != nil {
		return err
	}
	defer func() { _ = m.Disconnect() }()
	defer func() { _ = s.Close() }()

	if status, errQuery := s.Query(); errQuery == nil && status.State != svc.Stopped {
		_, _ = s.Control(svc.Stop)
		for i := 0; i < 10; i++ {
			time.Sleep(500 * time.Millisecond)
			status, errQuery = s.Query()
			if errQuery != nil || status.State == svc.Stopped {
				break
			}
		}
	}
	if err = s.Delete(); err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}
	_ = eventlog.Remove(serviceName)
	fmt.Printf("Service %s uninstalled\n", serviceName)
	return nil
}

func controlService(start bool) error {
	m, s, err := openService()
	if err != nil {
		return err
	}
	defer func() { _ = m.Disconnect() }()
	defer func() { _ = s.Close() }()
	if start {
		return s.Start()
	}
	_, err = s.Control(svc.Stop)
	return err
}

func serviceStatus() string {
	m, s, err := openService()
	if err != nil {
		return "not installed"
	}
	defer func() { _ = m.Disconnect() }()
	defer func() { _ = s.Close() }()

	status, err := s.Query()
	if err != nil {
		return "unknown"
	}
	switch status.State {
	case svc.Stopped:
		return "stopped"
	case svc.StartPending:
		return "starting"
	case svc.StopPending:
		return "stopping"
	case svc.Running:
		return "running"
	default:
		return "unknown"
	}
}

// handleServiceCommand handles install, uninstall, start, stop and status.
func handleServiceCommand(args []string) bool {
	if len(args) == 0 {
		return false
	}
	var err error
	switch strings.ToLower(args[0]) {
	case "install":
		configPath := ""
		if len(args) > 1 {
			configPath = args[1]
		}
		err = installService(configPath)
	case "uninstall", "remove":
		err = uninstallService()
	case "start":
		if err = controlService(true); err == nil {
			fmt.Println("Service started")
		}
	case "stop":
		if err = controlService(false); err == nil {
			fmt.Println("Service stopped")
		}
	case "status":
		fmt.Printf("Service status: %s\n", serviceStatus())
	default:
		return false
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return true
}
