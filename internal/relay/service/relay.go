package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/neon-saas/neon-gateway/internal/logging"
	"github.com/neon-saas/neon-gateway/internal/relay/domain"
	"github.com/neon-saas/neon-gateway/internal/relay/staging"
)

// Relay runs the validate, stage, forward pipeline shared by every route.
type Relay struct {
	client   *BackendClient
	stager   *staging.Stager
	delivery Delivery
	metrics  *Metrics
}

func NewRelay(client *BackendClient, stager *staging.Stager, delivery Delivery, metrics *Metrics) *Relay {
	if delivery == nil {
		delivery = PathDelivery{}
	}
	return &Relay{
		client:   client,
		stager:   stager,
		delivery: delivery,
		metrics:  metrics,
	}
}

// Client exposes the backend client for health probes.
func (r *Relay) Client() *BackendClient { return r.client }

// ForwardUpload stages src, forwards the envelope built from fields plus the
// file reference, and removes the staged file once the backend has answered.
// The file is fully written before the backend call starts.
func (r *Relay) ForwardUpload(ctx context.Context, ep Endpoint, filename string, src io.Reader, fields map[string]any) ([]byte, error) {
	st, err := r.stager.Stage(ctx, filename, src, false)
	if err != nil {
		return nil, err
	}
	defer st.Release(context.WithoutCancel(ctx))
	r.metrics.observeStaged(ep.Name, st.Size)

	env := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		env[k] = v
	}
	if err := r.delivery.Attach(ctx, env, &st.Upload); err != nil {
		return nil, err
	}
	defer r.discard(context.WithoutCancel(ctx), &st.Upload)

	logging.FromContext(ctx).Info("relaying upload",
		zap.String("endpoint", ep.Name),
		zap.String("upload_id", st.ID),
		zap.String("file", st.StoredName),
		zap.Int64("size", st.Size),
		zap.String("delivery", r.delivery.Mode()),
	)
	return r.post(ctx, ep, env)
}

// ForwardJSON sends a caller-supplied JSON body to the backend untouched.
func (r *Relay) ForwardJSON(ctx context.Context, ep Endpoint, body []byte) ([]byte, error) {
	return r.client.Post(ctx, ep, body)
}

// Chat forwards a {path, query} question. A reference to a retained upload
// has its expiry refreshed, and is sent in the same shape the delivery mode
// uses for uploads: file contents in inline mode, object_uri in object mode.
func (r *Relay) Chat(ctx context.Context, req domain.ChatRequest) ([]byte, error) {
	env := map[string]any{
		"path":  req.Path,
		"query": req.Query,
	}
	switch r.delivery.Mode() {
	case DeliveryObject:
		if strings.HasPrefix(req.Path, "s3://") {
			delete(env, "path")
			env["object_uri"] = req.Path
			env["filename"] = path.Base(req.Path)
			if od, ok := r.delivery.(*ObjectDelivery); ok {
				if id, name, ok := od.ParseURI(req.Path); ok {
					r.touch(ctx, r.stager.PathFor(id, name))
				}
			}
		}
	case DeliveryInline:
		if up, ok := r.stagedFile(req.Path); ok {
			r.touch(ctx, up.Path)
			delete(env, "path")
			if err := r.delivery.Attach(ctx, env, up); err != nil {
				return nil, err
			}
		}
	default:
		if up, ok := r.stagedFile(req.Path); ok {
			r.touch(ctx, up.Path)
		}
	}
	return r.post(ctx, EndpointChat, env)
}

// Retain stages src for later use (the upload helper) and returns the
// reference clients pass back to the chat relay.
func (r *Relay) Retain(ctx context.Context, filename string, src io.Reader) (string, error) {
	st, err := r.stager.Stage(ctx, filename, src, true)
	if err != nil {
		return "", err
	}
	defer st.Release(context.WithoutCancel(ctx))
	r.metrics.observeStaged("upload_helper", st.Size)

	ref, err := r.delivery.Reference(ctx, &st.Upload)
	if err != nil {
		return "", err
	}
	logging.FromContext(ctx).Info("upload retained",
		zap.String("upload_id", st.ID),
		zap.String("reference", ref),
		zap.Time("expires_at", st.ExpiresAt),
	)
	return ref, nil
}

func (r *Relay) discard(ctx context.Context, up *domain.Upload) {
	if err := r.delivery.Discard(ctx, up); err != nil {
		logging.FromContext(ctx).Warn("discard delivered copy",
			zap.String("upload_id", up.ID),
			zap.Error(err),
		)
	}
}

func (r *Relay) touch(ctx context.Context, p string) {
	ok, err := r.stager.Touch(ctx, p)
	if err != nil {
		logging.FromContext(ctx).Warn("refresh upload expiry", zap.String("path", p), zap.Error(err))
		return
	}
	if ok {
		logging.FromContext(ctx).Debug("upload expiry refreshed", zap.String("path", p))
	}
}

func (r *Relay) post(ctx context.Context, ep Endpoint, env map[string]any) ([]byte, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", ep.Name, err)
	}
	return r.client.Post(ctx, ep, body)
}

func (r *Relay) stagedFile(ref string) (*domain.Upload, bool) {
	if ref == "" || !filepath.IsAbs(ref) {
		return nil, false
	}
	clean := filepath.Clean(ref)
	rel, err := filepath.Rel(r.stager.Dir(), clean)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, false
	}
	info, err := os.Stat(clean)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	return &domain.Upload{Path: clean, StoredName: info.Name(), Size: info.Size()}, true
}
