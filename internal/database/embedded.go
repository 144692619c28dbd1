package database

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/odoobridge/internal/config"
)

const embeddedPassword = "postgres"

// startEmbedded runs a private PostgreSQL under cfg.EmbeddedPath and points
// cfg at it
func startEmbedded(cfg *config.DatabaseConfig, log *logrus.Logger) (*embeddedpostgres.EmbeddedPostgres, error) {
	logger := log.WithFields(logrus.Fields{"path": cfg.EmbeddedPath, "port": cfg.EmbeddedPort})
	logger.Info("📦 Starting embedded PostgreSQL")

	reapStalePostmaster(cfg.EmbeddedPath, logger)
	if err := waitPortFree(cfg.EmbeddedPort, 3*time.Second); err != nil {
		return nil, err
	}

	pg := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		DataPath(cfg.EmbeddedPath).
		Port(uint32(cfg.EmbeddedPort)).
		Database(cfg.Database).
		Username(cfg.Username).
		Password(embeddedPassword))
	if err := pg.Start(); err != nil {
		return nil, fmt.Errorf("failed to start embedded database: %w", err)
	}

	cfg.Host = "localhost"
	cfg.Port = strconv.Itoa(cfg.EmbeddedPort)
	cfg.Password = embeddedPassword
	logger.Info("✅ Embedded PostgreSQL started")
	return pg, nil
}

// reapStalePostmaster stops a postmaster left behind by a crashed run and
// removes its pid file
func reapStalePostmaster(dataPath string, log *logrus.Entry) {
	pidFile := filepath.Join(dataPath, "postmaster.pid")
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	if !scanner.Scan() {
		return
	}
	pid, err := strconv.Atoi(string(bytes.TrimSpace(scanner.Bytes())))
	if err != nil {
		log.Warnf("could not parse postmaster.pid: %v", err)
		return
	}

	// FindProcess always succeeds on unix; signal 0 probes liveness
	process, err := os.FindProcess(pid)
	if err != nil || process.Signal(syscall.Signal(0)) != nil {
		log.WithField("pid", pid).Info("🧹 Removing stale postmaster.pid")
		os.Remove(pidFile)
		return
	}

	log.WithField("pid", pid).Warn("⚠️ Stopping orphaned PostgreSQL process")
	_ = process.Signal(syscall.SIGTERM)
	for i := 0; i < 10; i++ {
		time.Sleep(500 * time.Millisecond)
		if process.Signal(syscall.Signal(0)) != nil {
			os.Remove(pidFile)
			return
		}
	}
	_ = process.Kill()
	time.Sleep(500 * time.Millisecond)
	os.Remove(pidFile)
}

func waitPortFree(port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
		if err != nil {
			return nil
		}
		conn.Close()
		if time.Now().After(deadline) {
			return fmt.Errorf("port %d is still in use by another process", port)
		}
		time.Sleep(500 * time.Millisecond)
	}
}
