// Package config loads AcornDB deployment configuration from a YAML
// resource file and builds the live root pipeline and policy ledger it
// describes. It deliberately stops short of constructing a Trunk[T]
// itself: trunk type is runtime data but Open/New are generic over the
// document type, so the final `sqltrunk.Open[MyDoc](cfg.Trunk.Path, ...)`
// call has to live at the call site, which is the only place that knows
// T. Config carries the TrunkConfig through so that call site doesn't
// have to parse YAML itself.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/acorndb/acorndb/internal/ledger"
	"github.com/acorndb/acorndb/internal/root"
	"github.com/acorndb/acorndb/internal/trunk"
)

// Resource is the YAML envelope every AcornDB config file carries, one
// document per acorn deployment.
type Resource struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	Metadata   struct {
		Name string `yaml:"name"`
	} `yaml:"metadata"`
	Spec Spec `yaml:"spec"`
}

// Spec is the body of a Resource: what trunk to open, what roots to
// stack in front of it, and whether a policy ledger governs writes.
type Spec struct {
	Trunk  TrunkConfig   `yaml:"trunk"`
	Roots  []RootConfig  `yaml:"roots"`
	Ledger *LedgerConfig `yaml:"ledger,omitempty"`
}

// TrunkConfig names which backing trunk to open and the parameters its
// constructor needs. Type selects one of trunk.TypeMemory/File/Bolt/
// AppendLog/SQL; Path and Bucket are interpreted per type (bolt wants
// both, file/appendlog/sql want only Path, memory wants neither).
type TrunkConfig struct {
	Type   trunk.TrunkType `yaml:"type"`
	Path   string          `yaml:"path,omitempty"`
	Bucket string          `yaml:"bucket,omitempty"`
}

// RootConfig describes one stage of the byte-transformation pipeline.
// Kind selects "compression" or "encryption"; the rest of the fields
// are interpreted per kind and left zero otherwise.
type RootConfig struct {
	Kind       string `yaml:"kind"`
	Level      int    `yaml:"level,omitempty"`      // compression
	Key        string `yaml:"key,omitempty"`        // encryption, raw 32-byte key (not base64-decoded)
	Password   string `yaml:"password,omitempty"`   // encryption, PBKDF2 source
	Salt       string `yaml:"salt,omitempty"`       // encryption, PBKDF2 salt
	Iterations int    `yaml:"iterations,omitempty"` // encryption, PBKDF2 iterations
	Sequence   int    `yaml:"sequence,omitempty"`   // overrides the kind's default ordering
}

// LedgerConfig describes the policy ledger backing a PolicyEnforcement
// root. An empty Path selects an in-memory ledger; the ledger does not
// survive the process in that case.
type LedgerConfig struct {
	Path string `yaml:"path,omitempty"`
}

// Load reads and parses a Resource from path.
func Load(path string) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("acorndb: read config %s: %w", path, err)
	}
	var res Resource
	if err := yaml.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("acorndb: parse config %s: %w", path, err)
	}
	if res.Spec.Trunk.Type == "" {
		return nil, fmt.Errorf("acorndb: config %s: spec.trunk.type is required", path)
	}
	return &res, nil
}

// BuildRoots constructs the ordered root.Root chain described by cfgs.
// Each root's Sequence defaults to its kind's package-level ordering
// (root.SequenceCompression, root.SequenceEncryption, ...) unless the
// config overrides it explicitly.
func BuildRoots(cfgs []RootConfig) ([]root.Root, error) {
	roots := make([]root.Root, 0, len(cfgs))
	for _, c := range cfgs {
		switch c.Kind {
		case "compression":
			r := root.NewCompression(c.Level)
			if c.Sequence != 0 {
				r.WithSequence(c.Sequence)
			}
			roots = append(roots, r)
		case "encryption":
			r, err := buildEncryption(c)
			if err != nil {
				return nil, err
			}
			if c.Sequence != 0 {
				r.WithSequence(c.Sequence)
			}
			roots = append(roots, r)
		default:
			return nil, fmt.Errorf("acorndb: unknown root kind %q", c.Kind)
		}
	}
	return roots, nil
}

func buildEncryption(c RootConfig) (*root.Encryption, error) {
	if c.Password != "" {
		iterations := c.Iterations
		if iterations == 0 {
			iterations = 100_000
		}
		return root.NewEncryptionFromPassword(c.Password, []byte(c.Salt), iterations)
	}
	if c.Key == "" {
		return nil, fmt.Errorf("acorndb: encryption root needs key or password")
	}
	return root.NewEncryption([]byte(c.Key))
}

// BuildLedger opens the ledger described by cfg, or an in-memory ledger
// if cfg is nil or cfg.Path is empty. The returned Log uses the reference
// SHA256Signer and a FuncCodec callers can populate via Register before
// wiring any PolicyEnforcement root that reads history back from disk.
func BuildLedger(cfg *LedgerConfig) (ledger.Log, *ledger.FuncCodec, error) {
	codec := ledger.NewFuncCodec()
	if cfg == nil || cfg.Path == "" {
		return ledger.NewMemoryLog(ledger.SHA256Signer{}), codec, nil
	}
	l, err := ledger.OpenFileLog(cfg.Path, ledger.SHA256Signer{}, codec)
	if err != nil {
		return nil, nil, fmt.Errorf("acorndb: build ledger: %w", err)
	}
	return l, codec, nil
}
