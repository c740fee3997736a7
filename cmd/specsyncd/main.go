package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/elevenstudents/specsync/internal/checklist"
	"github.com/elevenstudents/specsync/internal/httpapi"
	"github.com/elevenstudents/specsync/internal/progress"
	"github.com/elevenstudents/specsync/internal/remotestore"
)

// defaultSubjects back a deployment that has no checklist directory yet.
var defaultSubjects = []string{"biology", "chemistry", "physics"}

func main() {
	// A missing .env is fine; env vars win either way.
	_ = godotenv.Load()

	addr := os.Getenv("SPECSYNC_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	definitions, subjects, err := loadChecklists(os.Getenv("SPECSYNC_CHECKLIST_DIR"))
	if err != nil {
		log.Fatalf("failed to load checklist definitions: %v", err)
	}

	localDSN := strings.TrimSpace(os.Getenv("SPECSYNC_LOCAL_DSN"))
	if localDSN == "" {
		localDSN = ".specsync"
	}
	local, err := progress.BuildLocalStoreFromDSN(localDSN)
	if err != nil {
		log.Fatalf("failed to initialize local store: %v", err)
	}
	remote, err := remotestore.BuildStoreFromDSN(os.Getenv("SPECSYNC_REMOTE_DSN"), os.Getenv("SPECSYNC_REMOTE_TOKEN"))
	if err != nil {
		log.Fatalf("failed to initialize remote store: %v", err)
	}

	var scheduler *progress.Scheduler
	tracker, err := progress.NewTracker(progress.TrackerOptions{
		Subjects: subjects,
		OnMutate: func(subjectID string) {
			scheduler.NotifyMutation(subjectID)
		},
	})
	if err != nil {
		log.Fatalf("failed to initialize tracker: %v", err)
	}

	scheduler = progress.NewScheduler(progress.SchedulerOptions{
		QuietPeriod: durationEnv("SPECSYNC_QUIET_PERIOD", progress.DefaultQuietPeriod),
		Snapshot: func(subjectID string) (progress.SubjectState, bool) {
			state, err := tracker.Get(subjectID)
			if err != nil {
				return progress.SubjectState{}, false
			}
			return state, true
		},
		SaveLocal: local.Save,
	})
	defer scheduler.Close()

	session, err := progress.NewSession(progress.SessionOptions{
		Tracker:       tracker,
		Local:         local,
		Remote:        remote,
		Scheduler:     scheduler,
		ActiveSubject: os.Getenv("SPECSYNC_ACTIVE_SUBJECT"),
	})
	if err != nil {
		log.Fatalf("failed to initialize session: %v", err)
	}
	session.RestoreLocal()

	for _, subjectID := range subjects {
		definition, ok := definitions[subjectID]
		if !ok {
			continue
		}
		if err := tracker.SetChecklistScan(subjectID, definition.ItemKeys()); err != nil {
			log.Fatalf("failed to seed checklist scan for %s: %v", subjectID, err)
		}
	}

	cancelWatch := session.Watch(identityFromEnv())
	defer cancelWatch()

	server := httpapi.NewServerWithConfig(tracker, session, httpapi.ServerConfig{
		AuthToken:    os.Getenv("SPECSYNC_AUTH_TOKEN"),
		MaxBodyBytes: int64Env("SPECSYNC_MAX_BODY_BYTES", 0),
	})

	if dir := strings.TrimSpace(os.Getenv("SPECSYNC_CHECKLIST_DIR")); dir != "" {
		watcher, err := checklist.NewWatcher(dir, func(definition checklist.Checklist) {
			keys := definition.ItemKeys()
			if err := tracker.SetChecklistScan(definition.Subject, keys); err != nil {
				log.Printf("rescan rejected for %s: %v", definition.Subject, err)
				return
			}
			server.PublishScan(definition.Subject, len(keys))
		}, nil)
		if err != nil {
			log.Fatalf("failed to start checklist watcher: %v", err)
		}
		defer watcher.Close()
	}

	httpServer := &http.Server{Addr: addr, Handler: server}
	go func() {
		log.Printf("specsync listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func loadChecklists(dir string) (map[string]checklist.Checklist, []string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return map[string]checklist.Checklist{}, defaultSubjects, nil
	}
	return checklist.LoadDir(dir)
}

// identityFromEnv builds the fixed identity for env-configured deployments.
// Without SPECSYNC_UID the process runs signed out: local persistence only.
func identityFromEnv() progress.Identity {
	uid := strings.TrimSpace(os.Getenv("SPECSYNC_UID"))
	if uid == "" {
		return progress.StaticIdentity{}
	}
	return progress.StaticIdentity{User: &progress.User{
		UID:   uid,
		Email: strings.TrimSpace(os.Getenv("SPECSYNC_EMAIL")),
	}}
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
