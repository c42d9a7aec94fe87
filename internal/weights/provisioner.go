package weights

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyeh20/protein-sequence/internal/logger"
	"github.com/hyeh20/protein-sequence/internal/model"
)

// ErrSourceUnavailable means neither a native bundle nor a foreign checkpoint
// exists for a model id.
var ErrSourceUnavailable = errors.New("weights: no native bundle or foreign checkpoint")

// Provisioner resolves model ids to native weight bundles, converting from
// foreign checkpoints on first use. Conversion for a given id happens at most
// once at a time; concurrent callers for the same id serialise, different ids
// proceed independently.
type Provisioner struct {
	dir string
	log logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewProvisioner creates a provisioner rooted at dir. Native bundles live
// directly under dir; foreign checkpoints under dir/foreign.
func NewProvisioner(dir string, log logger.Logger) *Provisioner {
	if log == nil {
		log = logger.Default()
	}
	return &Provisioner{
		dir:   dir,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// NativePath returns the path of the native bundle for a model id.
func (p *Provisioner) NativePath(id string) string {
	return filepath.Join(p.dir, id+".wbf")
}

// ForeignPath returns the path of the foreign checkpoint for a model id.
func (p *Provisioner) ForeignPath(id string) string {
	return filepath.Join(p.dir, "foreign", id+".fwt")
}

func (p *Provisioner) lockFor(id string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[id]
	if !ok {
		l = &sync.Mutex{}
		p.locks[id] = l
	}
	return l
}

// EnsureNative makes sure a native bundle exists for the id and returns its
// path. If the bundle is already present it is reused as-is; otherwise the
// foreign checkpoint is converted using the given parameter table. Returns
// ErrSourceUnavailable when neither artifact exists.
func (p *Provisioner) EnsureNative(id string, params []NamedParam) (string, error) {
	l := p.lockFor(id)
	l.Lock()
	defer l.Unlock()

	native := p.NativePath(id)
	if _, err := os.Stat(native); err == nil {
		return native, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	foreign := p.ForeignPath(id)
	if _, err := os.Stat(foreign); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: model %s", ErrSourceUnavailable, id)
		}
		return "", err
	}

	p.log.Info("converting foreign checkpoint", "model", id, "source", foreign)
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", err
	}
	ff, err := OpenForeign(foreign)
	if err != nil {
		return "", fmt.Errorf("open foreign checkpoint for %s: %w", id, err)
	}
	if err := Convert(ff, native, params); err != nil {
		return "", fmt.Errorf("convert checkpoint for %s: %w", id, err)
	}
	p.log.Info("native bundle written", "model", id, "path", native)
	return native, nil
}

// LoadInto provisions the bundle for the id and copies its tensors into the
// network parameters. Loading is best-effort: parameters missing from the
// bundle or stored with a different shape are skipped with a warning and keep
// their current values.
func (p *Provisioner) LoadInto(net *model.Network, id string) error {
	params := net.Parameters()
	path, err := p.EnsureNative(id, ParamTable(params))
	if err != nil {
		return err
	}

	b, err := OpenBundle(path)
	if err != nil {
		return fmt.Errorf("open bundle %s: %w", path, err)
	}
	defer func() { _ = b.Close() }()

	loaded, skipped := 0, 0
	for _, param := range params {
		data, shape, err := b.Tensor(param.Name)
		if errors.Is(err, ErrTensorNotFound) {
			p.log.Warn("parameter missing from bundle", "model", id, "param", param.Name)
			skipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s from bundle: %w", param.Name, err)
		}
		if !shapesEqual(shape, param.Shape) {
			p.log.Warn("parameter shape mismatch",
				"model", id, "param", param.Name, "bundle", shape, "want", param.Shape)
			skipped++
			continue
		}
		copy(param.Data, data)
		loaded++
	}

	p.log.Info("weights loaded", "model", id, "loaded", loaded, "skipped", skipped)
	return nil
}

// ParamTable projects network parameters down to the name/shape table used
// by conversion.
func ParamTable(params []model.Param) []NamedParam {
	out := make([]NamedParam, len(params))
	for i, p := range params {
		out[i] = NamedParam{Name: p.Name, Shape: p.Shape}
	}
	return out
}
