package signature

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wehubfusion/Talaria/pkg/catalog"
	"github.com/wehubfusion/Talaria/pkg/errors"
	"go.uber.org/zap"
)

// Entry is the per-node record of the signature store. Authenticated is
// derived from the auth map on every read; it is never a cached flag that can
// drift from the underlying values.
type Entry struct {
	NodeType      string                 `json:"nodeType"`
	Authenticated bool                   `json:"authenticated"`
	Auth          map[string]AuthValue   `json:"auth,omitempty"`
	Defaults      map[string]interface{} `json:"defaults,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// entryRecord is the persisted shape of one entry. The authenticated flag is
// written for readers of the document but recomputed on every load.
type entryRecord struct {
	Authenticated bool                   `json:"authenticated"`
	Auth          map[string]AuthValue   `json:"auth,omitempty"`
	Defaults      map[string]interface{} `json:"defaults,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// document is the full persisted signature store.
type document struct {
	Version int                     `json:"version"`
	Nodes   map[string]*entryRecord `json:"nodes"`
}

const documentVersion = 1

func emptyDocument() *document {
	return &document{Version: documentVersion, Nodes: map[string]*entryRecord{}}
}

// clone deep-copies the document so a mutation never touches a snapshot that
// concurrent readers may still hold.
func (d *document) clone() *document {
	out := &document{Version: d.Version, Nodes: make(map[string]*entryRecord, len(d.Nodes))}
	for nodeType, rec := range d.Nodes {
		copied := &entryRecord{
			Auth:      make(map[string]AuthValue, len(rec.Auth)),
			Defaults:  make(map[string]interface{}, len(rec.Defaults)),
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		}
		for k, v := range rec.Auth {
			copied.Auth[k] = v
		}
		for k, v := range rec.Defaults {
			copied.Defaults[k] = v
		}
		out.Nodes[nodeType] = copied
	}
	return out
}

// Store is the file-backed signature store. Mutations are serialized through
// a single writer mutex and persisted with a write-to-temporary-file plus
// atomic rename, so a crash mid-write never corrupts the document. Reads
// observe a lock-free snapshot that is either the pre- or post-mutation
// document, never a partial one.
type Store struct {
	path      string
	catalog   *catalog.Store
	logger    *zap.Logger
	lookupEnv func(string) (string, bool)

	mu       sync.Mutex
	snapshot atomic.Pointer[document]
}

// Option configures a Store.
type Option func(*Store)

// WithEnvLookup overrides how environment references are resolved. Intended
// for tests; the default is os.LookupEnv.
func WithEnvLookup(lookup func(string) (string, bool)) Option {
	return func(s *Store) {
		s.lookupEnv = lookup
	}
}

// NewStore opens the signature store at the given path, creating an empty
// document on first use. The catalog store is consulted to cross-check auth
// fields and parameter defaults against node declarations.
func NewStore(path string, catalogStore *catalog.Store, logger *zap.Logger, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("signature path cannot be empty")
	}
	if catalogStore == nil {
		return nil, fmt.Errorf("catalog store cannot be nil")
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	s := &Store{
		path:      path,
		catalog:   catalogStore,
		logger:    logger,
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(s)
	}

	doc, err := loadDocument(path)
	if err != nil {
		return nil, err
	}
	s.snapshot.Store(doc)

	return s, nil
}

// loadDocument reads the persisted document, returning an empty one when the
// file does not exist yet.
func loadDocument(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return emptyDocument(), nil
		}
		return nil, fmt.Errorf("failed to read signature document: %w", err)
	}

	doc := emptyDocument()
	if len(data) > 0 {
		if err := json.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("failed to parse signature document: %w", err)
		}
	}
	if doc.Nodes == nil {
		doc.Nodes = map[string]*entryRecord{}
	}
	return doc, nil
}

// persist writes the document to a temporary file in the same directory and
// renames it over the store path. Must be called with the writer mutex held.
func (s *Store) persist(doc *document) error {
	for nodeType, rec := range doc.Nodes {
		rec.Authenticated = s.authComplete(nodeType, rec)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal signature document: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create signature directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".signature-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary signature file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write signature document: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set signature file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temporary signature file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to install signature document: %w", err)
	}

	return nil
}

// Entry returns the signature entry for a node type.
func (s *Store) Entry(nodeType string) (Entry, error) {
	doc := s.snapshot.Load()
	rec, ok := doc.Nodes[nodeType]
	if !ok {
		return Entry{}, errors.Newf(errors.KindNotFound,
			"node %q is not in the signature", nodeType)
	}
	return s.toEntry(nodeType, rec), nil
}

// Entries returns all signature entries sorted by node type.
func (s *Store) Entries() []Entry {
	doc := s.snapshot.Load()
	entries := make([]Entry, 0, len(doc.Nodes))
	for nodeType, rec := range doc.Nodes {
		entries = append(entries, s.toEntry(nodeType, rec))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].NodeType < entries[j].NodeType })
	return entries
}

// AddNode adds a node to the signature with its auth material and optional
// parameter defaults. The auth map must cover every auth field the node
// declares in the catalog; unknown auth fields and defaults for undeclared
// parameters are rejected.
func (s *Store) AddNode(nodeType string, auth map[string]AuthValue, defaults map[string]interface{}) (Entry, error) {
	def, err := s.catalog.Get(nodeType)
	if err != nil {
		return Entry{}, err
	}

	if err := validateAuthFields(def, auth); err != nil {
		return Entry{}, err
	}
	if err := validateDefaults(def, defaults); err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	doc := s.snapshot.Load().clone()

	rec, exists := doc.Nodes[nodeType]
	if !exists {
		rec = &entryRecord{CreatedAt: now}
		doc.Nodes[nodeType] = rec
	}
	rec.UpdatedAt = now
	rec.Auth = make(map[string]AuthValue, len(auth))
	for k, v := range auth {
		rec.Auth[k] = v
	}
	rec.Defaults = make(map[string]interface{}, len(defaults))
	for k, v := range defaults {
		rec.Defaults[k] = v
	}

	if err := s.persist(doc); err != nil {
		return Entry{}, err
	}
	s.snapshot.Store(doc)

	s.logger.Info("Added node to signature",
		zap.String("nodeType", nodeType),
		zap.Int("authFields", len(auth)),
		zap.Int("defaults", len(defaults)))

	return s.toEntry(nodeType, rec), nil
}

// RemoveNode removes a node from the signature. Removing an absent node is
// not an error.
func (s *Store) RemoveNode(nodeType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.snapshot.Load()
	if _, ok := doc.Nodes[nodeType]; !ok {
		return nil
	}

	doc = doc.clone()
	delete(doc.Nodes, nodeType)

	if err := s.persist(doc); err != nil {
		return err
	}
	s.snapshot.Store(doc)

	s.logger.Info("Removed node from signature", zap.String("nodeType", nodeType))
	return nil
}

// UpdateDefaults replaces the parameter defaults for a node that was
// previously added.
func (s *Store) UpdateDefaults(nodeType string, defaults map[string]interface{}) (Entry, error) {
	def, err := s.catalog.Get(nodeType)
	if err != nil {
		return Entry{}, err
	}
	if err := validateDefaults(def, defaults); err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.snapshot.Load()
	if _, ok := doc.Nodes[nodeType]; !ok {
		return Entry{}, errors.Newf(errors.KindNotFound,
			"node %q is not in the signature", nodeType)
	}

	doc = doc.clone()
	rec := doc.Nodes[nodeType]
	rec.UpdatedAt = time.Now().UTC()
	rec.Defaults = make(map[string]interface{}, len(defaults))
	for k, v := range defaults {
		rec.Defaults[k] = v
	}

	if err := s.persist(doc); err != nil {
		return Entry{}, err
	}
	s.snapshot.Store(doc)

	return s.toEntry(nodeType, rec), nil
}

// Defaults returns the stored parameter defaults for a node, or an empty map
// when the node was never added.
func (s *Store) Defaults(nodeType string) map[string]interface{} {
	doc := s.snapshot.Load()
	rec, ok := doc.Nodes[nodeType]
	if !ok {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(rec.Defaults))
	for k, v := range rec.Defaults {
		out[k] = v
	}
	return out
}

// IsAuthenticated reports whether every auth field the node declares is
// present and non-empty in the stored auth map. It is recomputed from the
// auth contents on every call. Nodes that declare no auth fields are always
// authenticated.
func (s *Store) IsAuthenticated(nodeType string) bool {
	def, err := s.catalog.Get(nodeType)
	if err != nil {
		return false
	}
	if !def.RequiresAuth() {
		return true
	}

	doc := s.snapshot.Load()
	rec, ok := doc.Nodes[nodeType]
	if !ok {
		return false
	}
	return authFieldsSatisfied(def.AuthFields, rec.Auth)
}

// AuthenticatedCount returns how many signature entries are currently
// authenticated against the live catalog.
func (s *Store) AuthenticatedCount() int {
	count := 0
	doc := s.snapshot.Load()
	for nodeType := range doc.Nodes {
		if s.IsAuthenticated(nodeType) {
			count++
		}
	}
	return count
}

// ResolveAuth returns the node's auth map with every environment reference
// substituted with its current value. Resolution never writes the substituted
// value back to disk; a reference to a missing variable fails with
// AuthResolutionError.
func (s *Store) ResolveAuth(nodeType string) (map[string]string, error) {
	def, err := s.catalog.Get(nodeType)
	if err != nil {
		return nil, err
	}

	doc := s.snapshot.Load()
	rec, ok := doc.Nodes[nodeType]
	if !ok {
		if !def.RequiresAuth() {
			return map[string]string{}, nil
		}
		return nil, errors.Newf(errors.KindAuthRequired,
			"node %q has not been added to the signature", nodeType)
	}

	resolved := make(map[string]string, len(rec.Auth))
	for field, value := range rec.Auth {
		v, err := value.Resolve(s.lookupEnv)
		if err != nil {
			return nil, errors.Wrap(errors.KindAuthResolutionError,
				fmt.Sprintf("failed to resolve auth field %q for node %q", field, nodeType), err)
		}
		resolved[field] = v
	}
	return resolved, nil
}

// toEntry converts a record to a public entry, deriving the authenticated
// flag from the current auth contents and catalog declaration.
func (s *Store) toEntry(nodeType string, rec *entryRecord) Entry {
	auth := make(map[string]AuthValue, len(rec.Auth))
	for k, v := range rec.Auth {
		auth[k] = v
	}
	defaults := make(map[string]interface{}, len(rec.Defaults))
	for k, v := range rec.Defaults {
		defaults[k] = v
	}
	return Entry{
		NodeType:      nodeType,
		Authenticated: s.authComplete(nodeType, rec),
		Auth:          auth,
		Defaults:      defaults,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

// authComplete derives the authenticated flag for a record against the live
// catalog definition.
func (s *Store) authComplete(nodeType string, rec *entryRecord) bool {
	def, err := s.catalog.Get(nodeType)
	if err != nil {
		return false
	}
	if !def.RequiresAuth() {
		return true
	}
	return authFieldsSatisfied(def.AuthFields, rec.Auth)
}

func authFieldsSatisfied(fields []string, auth map[string]AuthValue) bool {
	for _, field := range fields {
		value, ok := auth[field]
		if !ok || !value.IsSet() {
			return false
		}
	}
	return true
}

// validateAuthFields checks that the supplied auth map covers every declared
// auth field and contains nothing the node does not declare.
func validateAuthFields(def catalog.NodeDefinition, auth map[string]AuthValue) error {
	if !def.RequiresAuth() {
		if len(auth) > 0 {
			return errors.Newf(errors.KindValidationError,
				"node %q requires no auth but auth fields were supplied", def.Type)
		}
		return nil
	}

	declared := make(map[string]struct{}, len(def.AuthFields))
	for _, field := range def.AuthFields {
		declared[field] = struct{}{}
		value, ok := auth[field]
		if !ok || !value.IsSet() {
			return errors.Newf(errors.KindValidationError,
				"auth for node %q is missing required field %q", def.Type, field)
		}
	}
	for field := range auth {
		if _, ok := declared[field]; !ok {
			return errors.Newf(errors.KindValidationError,
				"node %q does not declare auth field %q", def.Type, field)
		}
	}
	return nil
}

// validateDefaults checks that every default parameter is declared by at
// least one operation of the node.
func validateDefaults(def catalog.NodeDefinition, defaults map[string]interface{}) error {
	for name := range defaults {
		declared := false
		for _, op := range def.Operations {
			if _, ok := op.DeclaresParam(name); ok {
				declared = true
				break
			}
		}
		if !declared {
			return errors.Newf(errors.KindValidationError,
				"no operation of node %q declares parameter %q", def.Type, name)
		}
	}
	return nil
}
