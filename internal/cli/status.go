package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/mnemo/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and knowledge base status",
	Long:  `Show whether the mnemo daemon is running and summarize the knowledge base.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pidFile := pidFilePath(cfg)

	if !isRunning(pidFile) {
		fmt.Println("Daemon: stopped")
	} else {
		pid, err := readPID(pidFile)
		if err != nil {
			return err
		}
		fmt.Println("Daemon: running")
		fmt.Printf("PID: %d\n", pid)

		// PID file modification time approximates start time
		if fileInfo, err := os.Stat(pidFile); err == nil {
			fmt.Printf("Uptime: %s\n", formatDuration(time.Since(fileInfo.ModTime())))
		}
	}

	eng, cleanup, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	status, err := eng.Status(context.Background())
	if err != nil {
		return fmt.Errorf("failed to read knowledge base: %w", err)
	}

	fmt.Printf("Live memories: %d\n", status.LiveMemories)
	fmt.Printf("Links: %d\n", status.Links)
	fmt.Printf("Orphans: %d\n", status.Orphans)
	fmt.Printf("Centrality cached: %d\n", status.CentralityCached)

	return nil
}

func pidFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "mnemo.pid")
}

func readPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, err
	}

	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, nil
}

func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so probe with signal 0.
	// EPERM means the process exists but belongs to another user.
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
