// Command kvstore is a small interactive/demo driver for the singleton
// key-value store. It loads configuration, opens a backend (in-memory or
// bbolt-persisted), wires up an event listener, then runs a short
// scripted demo of the store's surface: set/get/delete, undo, and
// message-queue push/pop. It exits after printing a metrics snapshot, or
// runs until SIGINT/SIGTERM if -serve is given.
//
// Usage:
//
//	./kvstore              # run the demo once and exit
//	./kvstore -serve        # keep a background queue consumer running
//	STORE_BACKEND=bbolt ./kvstore
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os/signal"
	"syscall"
	"time"

	"github.com/qinhy/singleton-key-value-storage/internal/config"
	"github.com/qinhy/singleton-key-value-storage/internal/logger"
	"github.com/qinhy/singleton-key-value-storage/storage"
)

func main() {
	cfg := config.Load()
	serve := flag.Bool("serve", false, "keep running, consuming the demo queue until SIGINT/SIGTERM")
	flag.Parse()

	printBanner(cfg)

	lg := logger.New("KVSTORE", cfg.LogLevel)

	backend, closeBackend, err := openBackend(cfg)
	if err != nil {
		log.Fatalf("[KVSTORE] Fatal: opening backend: %v", err)
	}
	defer closeBackend()

	encryptor, err := buildEncryptor(cfg)
	if err != nil {
		log.Fatalf("[KVSTORE] Fatal: building encryptor: %v", err)
	}

	store := storage.NewWithOptions(backend, cfg.VersionControl, encryptor,
		storage.ParseEvictionPolicy(cfg.EvictionPolicy), cfg.VersionLimitMB, cfg.QueueStoreLimitMB)

	store.SetEvent("*", func(msg storage.Value) {
		lg.Debugf("event", "%v", msg)
	}, "")

	runDemo(store, lg)

	if *serve {
		runServeLoop(store, lg)
	}

	snapshot := store.Metrics()
	out, _ := json.MarshalIndent(snapshot, "", "  ")
	fmt.Println(string(out))
}

// openBackend opens the configured StorageController. When cfg.MaxMemoryMB
// is positive, the backend is wrapped in a MemoryLimited controller using
// cfg.EvictionPolicy, so the configured memory cap actually bounds the
// store instead of being decorative.
func openBackend(cfg *config.Config) (storage.StorageController, func(), error) {
	var backend storage.StorageController
	var closeBackend func()

	switch cfg.Backend {
	case "bbolt":
		b, err := storage.NewBboltStore(cfg.DBFile)
		if err != nil {
			return nil, nil, err
		}
		backend = b
		closeBackend = func() {
			if err := b.Close(); err != nil {
				log.Printf("[KVSTORE] bbolt close error: %v", err)
			}
		}
	default:
		backend = storage.NewMapStore()
		closeBackend = func() {}
	}

	if cfg.MaxMemoryMB > 0 {
		backend = storage.NewMemoryLimited(backend, cfg.MaxMemoryMB, storage.ParseEvictionPolicy(cfg.EvictionPolicy), nil, nil)
	}
	return backend, closeBackend, nil
}

// buildEncryptor returns nil if neither key file is configured. A
// compress wrapper is applied around the RSA chunk cipher when
// EncryptorCompress is set.
func buildEncryptor(cfg *config.Config) (storage.Encryptor, error) {
	if cfg.EncryptorPublicKeyFile == "" && cfg.EncryptorPrivateKeyFile == "" {
		return nil, nil
	}

	var pubE, pubN, privD, privN *big.Int
	if cfg.EncryptorPublicKeyFile != "" {
		e, n, err := storage.NewPEMFileReader(cfg.EncryptorPublicKeyFile).LoadPublicKey()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", cfg.EncryptorPublicKeyFile, err)
		}
		pubE, pubN = e, n
	}
	if cfg.EncryptorPrivateKeyFile != "" {
		d, n, err := storage.NewPEMFileReader(cfg.EncryptorPrivateKeyFile).LoadPrivateKey()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", cfg.EncryptorPrivateKeyFile, err)
		}
		privD, privN = d, n
	}

	base, err := storage.NewRSAChunkEncryptor(pubE, pubN, privD, privN)
	if err != nil {
		return nil, err
	}
	if cfg.EncryptorCompress {
		return storage.NewDeflateEncryptor(base), nil
	}
	return base, nil
}

func runDemo(store *storage.Store, lg *logger.Logger) {
	lg.Info("demo", "setting session:42")
	store.Set("session:42", map[string]storage.Value{"user": "ada", "role": "admin"})

	if v, ok := store.Get("session:42"); ok {
		lg.Infof("demo", "got session:42 = %v", v)
	}

	store.Push("jobs", map[string]storage.Value{"task": "reindex"})
	if msg, ok := store.Pop("jobs"); ok {
		lg.Infof("demo", "popped job = %v", msg)
	}

	store.Delete("session:42")
	store.RevertOneOperation()
	if _, ok := store.Get("session:42"); ok {
		lg.Info("demo", "undo restored session:42")
	}
}

func runServeLoop(store *storage.Store, lg *logger.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lg.Info("serve", "consuming jobs queue until interrupted")
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info("serve", "shutting down")
			return
		case <-ticker.C:
			if msg, ok := store.Pop("jobs"); ok {
				lg.Infof("serve", "consumed %v", msg)
			}
		}
	}
}

func printBanner(cfg *config.Config) {
	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║          Singleton Key-Value Store  (Go)              ║
╚══════════════════════════════════════════════════════╝
  Backend           : %s
  Version control   : %v
  Version limit     : %.0f MB
  Queue store limit : %.0f MB
  Eviction policy    : %s
  Max memory         : %s

`, cfg.Backend, cfg.VersionControl, cfg.VersionLimitMB, cfg.QueueStoreLimitMB, cfg.EvictionPolicy, maxMemoryLabel(cfg.MaxMemoryMB))
}

func maxMemoryLabel(maxMemoryMB float64) string {
	if maxMemoryMB <= 0 {
		return "unbounded"
	}
	return fmt.Sprintf("%.0f MB", maxMemoryMB)
}
