package plugin

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/manifest"
)

var execTimeout = 30 * time.Second

// runWithKillTimer runs an already-wired command, killing it when it
// exceeds the hook deadline. Every plugin invocation, the capabilities
// probe included, goes through this guard.
func runWithKillTimer(cmd *exec.Cmd) error {
	// Children of a killed plugin can keep its pipes open; bound the drain.
	cmd.WaitDelay = time.Second
	if err := cmd.Start(); err != nil {
		return err
	}
	timer := time.AfterFunc(execTimeout, func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
	})
	defer timer.Stop()
	return cmd.Wait()
}

// capabilities is the reply to the probe invocation. A plugin that does
// not implement the probe is assumed to implement every hook.
type capabilities struct {
	PreDownload bool `json:"pre_download"`
	PostAsset   bool `json:"post_asset"`
	Finalize    bool `json:"finalize"`
}

// execRequest is the JSON document written to a plugin's stdin. The hook
// name is also passed as the first argument.
type execRequest struct {
	Hook       string             `json:"hook"`
	Path       string             `json:"path,omitempty"`
	ContentB64 string             `json:"content_b64,omitempty"`
	Context    execContext        `json:"context"`
	Manifest   *manifest.Manifest `json:"manifest,omitempty"`
}

type execContext struct {
	OutputRoot string `json:"output_root"`
	RunID      string `json:"run_id"`
	Timestamp  string `json:"timestamp"`
}

// execResponse is a hook's stdout reply. All fields are optional; an
// empty object means "no change".
type execResponse struct {
	ContentB64    *string        `json:"content_b64,omitempty"`
	Content       *string        `json:"content,omitempty"`
	ManifestExtra map[string]any `json:"manifest_extra,omitempty"`
}

// ExecPlugin is an executable discovered in the plugins directory, driven
// over a one-shot stdin/stdout JSON exchange per hook.
type ExecPlugin struct {
	name string
	path string
	caps capabilities
}

var _ PreDownloader = (*ExecPlugin)(nil)
var _ AssetTransformer = (*ExecPlugin)(nil)
var _ Finalizer = (*ExecPlugin)(nil)

// Discover lists executable regular files in dir and probes each for its
// capabilities. A missing directory yields no plugins; an unreadable one
// is an error the caller degrades to a skipped phase.
func Discover(dir string) ([]Handle, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plugins dir: %w", err)
	}

	var handles []Handle
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Mode().Perm()&0o111 == 0 {
			continue
		}
		p := &ExecPlugin{
			name: entry.Name(),
			path: filepath.Join(dir, entry.Name()),
		}
		p.caps = p.probe()
		handles = append(handles, Handle{Name: p.name, Impl: p})
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].Name < handles[j].Name })
	return handles, nil
}

// probe asks the plugin which hooks it implements. Any failure falls back
// to all hooks enabled; a plugin that then ignores a hook simply returns
// no change.
func (p *ExecPlugin) probe() capabilities {
	all := capabilities{PreDownload: true, PostAsset: true, Finalize: true}
	cmd := exec.Command(p.path, "capabilities")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := runWithKillTimer(cmd); err != nil {
		return all
	}
	var caps capabilities
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &caps); err != nil {
		return all
	}
	return caps
}

func (p *ExecPlugin) PreDownload(pc Context) error {
	if !p.caps.PreDownload {
		return nil
	}
	_, err := p.invoke(execRequest{Hook: "pre_download", Context: toExecContext(pc)})
	return err
}

func (p *ExecPlugin) TransformAsset(pc Context, relPath string, content []byte) ([]byte, bool, error) {
	if !p.caps.PostAsset {
		return nil, false, nil
	}
	resp, err := p.invoke(execRequest{
		Hook:       "post_asset",
		Path:       relPath,
		ContentB64: base64.StdEncoding.EncodeToString(content),
		Context:    toExecContext(pc),
		Manifest:   pc.Manifest,
	})
	if err != nil {
		return nil, false, err
	}
	switch {
	case resp.ContentB64 != nil:
		replacement, err := base64.StdEncoding.DecodeString(*resp.ContentB64)
		if err != nil {
			return nil, false, fmt.Errorf("decode replacement for %s: %w", relPath, err)
		}
		return replacement, true, nil
	case resp.Content != nil:
		// Text replies are encoded to bytes as-is.
		return []byte(*resp.Content), true, nil
	default:
		return nil, false, nil
	}
}

func (p *ExecPlugin) Finalize(pc Context, m *manifest.Manifest) error {
	if !p.caps.Finalize {
		return nil
	}
	resp, err := p.invoke(execRequest{Hook: "finalize", Context: toExecContext(pc), Manifest: m})
	if err != nil {
		return err
	}
	if len(resp.ManifestExtra) > 0 {
		if m.Extra == nil {
			m.Extra = make(map[string]any, len(resp.ManifestExtra))
		}
		for k, v := range resp.ManifestExtra {
			m.Extra[k] = v
		}
	}
	return nil
}

func (p *ExecPlugin) invoke(req execRequest) (execResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return execResponse{}, fmt.Errorf("encode %s request: %w", req.Hook, err)
	}

	cmd := exec.Command(p.path, req.Hook)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := runWithKillTimer(cmd); err != nil {
		return execResponse{}, fmt.Errorf("%s hook failed: %w (stderr: %s)",
			req.Hook, err, bytes.TrimSpace(stderr.Bytes()))
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return execResponse{}, nil
	}
	var resp execResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return execResponse{}, fmt.Errorf("decode %s reply: %w", req.Hook, err)
	}
	return resp, nil
}

func toExecContext(pc Context) execContext {
	return execContext{
		OutputRoot: pc.OutputRoot,
		RunID:      pc.RunID,
		Timestamp:  pc.Timestamp.UTC().Format(time.RFC3339),
	}
}
