package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"campuspresence/internal/models"
)

// KVConfig holds configuration for the NATS-backed preference store
type KVConfig struct {
	ServerURL  string
	BucketName string
	Embedded   bool
	DataDir    string
}

// kvStore implements Store on a NATS JetStream KV bucket so preferences
// survive the session and follow the subject across devices
type kvStore struct {
	config KVConfig
	server *server.Server
	conn   *nats.Conn
	kv     jetstream.KeyValue
}

// NewKVStore creates a NATS-backed preference store
func NewKVStore(config KVConfig) (Store, error) {
	store := &kvStore{config: config}

	if config.Embedded {
		if err := store.startEmbeddedServer(); err != nil {
			return nil, fmt.Errorf("failed to start embedded server: %w", err)
		}
	}

	serverURL := store.config.ServerURL
	if serverURL == "" {
		serverURL = nats.DefaultURL
	}

	conn, err := nats.Connect(serverURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		store.cleanup()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	store.conn = conn

	js, err := jetstream.New(conn)
	if err != nil {
		store.cleanup()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	bucketName := config.BucketName
	if bucketName == "" {
		bucketName = "sharing-prefs"
	}

	kv, err := js.CreateKeyValue(context.Background(), jetstream.KeyValueConfig{Bucket: bucketName})
	if err != nil {
		kv, err = js.KeyValue(context.Background(), bucketName)
		if err != nil {
			store.cleanup()
			return nil, fmt.Errorf("failed to create/get KV bucket: %w", err)
		}
	}
	store.kv = kv

	return store, nil
}

func (s *kvStore) Preferences(ctx context.Context) (models.SharingPreference, error) {
	var p models.SharingPreference
	found, err := s.get(ctx, keySharing, &p)
	if err != nil || !found {
		return models.SharingPreference{}, err
	}
	return p, nil
}

func (s *kvStore) SetPreferences(ctx context.Context, p models.SharingPreference) error {
	return s.put(ctx, keySharing, p)
}

func (s *kvStore) Role(ctx context.Context) (models.Role, error) {
	var role models.Role
	found, err := s.get(ctx, keyRole, &role)
	if err != nil {
		return models.RoleObserver, err
	}
	if !found || !role.IsValid() {
		// Unknown role never publishes
		return models.RoleObserver, nil
	}
	return role, nil
}

func (s *kvStore) SetRole(ctx context.Context, role models.Role) error {
	return s.put(ctx, keyRole, role)
}

func (s *kvStore) Publishing(ctx context.Context) (bool, error) {
	var on bool
	found, err := s.get(ctx, keyPublishing, &on)
	if err != nil || !found {
		return false, err
	}
	return on, nil
}

func (s *kvStore) SetPublishing(ctx context.Context, on bool) error {
	return s.put(ctx, keyPublishing, on)
}

// Close closes the connection and shuts down the embedded server if any
func (s *kvStore) Close() error {
	return s.cleanup()
}

// get reads and unmarshals one document; found is false for absent keys
func (s *kvStore) get(ctx context.Context, key string, out any) (bool, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if entry == nil || len(entry.Value()) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(entry.Value(), out); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// put marshals and writes one document, last write wins
func (s *kvStore) put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if _, err := s.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// startEmbeddedServer starts an embedded NATS server with JetStream
func (s *kvStore) startEmbeddedServer() error {
	opts := &server.Options{
		Host:       "0.0.0.0",
		Port:       -1, // random port for client connections
		JetStream:  true,
		ServerName: fmt.Sprintf("prefs-%d", time.Now().UnixNano()),
	}

	if s.config.DataDir != "" {
		if err := ensureDirectory(s.config.DataDir); err != nil {
			return fmt.Errorf("failed to ensure data directory: %w", err)
		}
		opts.StoreDir = s.config.DataDir
		opts.JetStreamMaxMemory = 32 * 1024 * 1024
		opts.JetStreamMaxStore = 256 * 1024 * 1024
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return fmt.Errorf("embedded server failed to start")
	}

	s.server = ns
	s.config.ServerURL = ns.ClientURL()
	return nil
}

// cleanup closes the connection and shuts down the embedded server
func (s *kvStore) cleanup() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.server != nil {
		s.server.Shutdown()
		s.server.WaitForShutdown()
	}
	return nil
}

// ensureDirectory creates the directory if needed and verifies it is writable
func ensureDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	testFile := dir + "/.write-test"
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("directory not writable: %w", err)
	}
	f.Close()
	os.Remove(testFile)

	return nil
}
