package holviserver

import (
	"os"
	"path/filepath"

	"github.com/function61/gokit/jsonfile"
)

// Config is the assembled server configuration: flags merged over the
// optional JSON config file.
type Config struct {
	ListenAddr     string `json:"listen_addr"`
	DataRoot       string `json:"data_root"`
	NoAuth         bool   `json:"no_auth"`
	HtpasswdPath   string `json:"htpasswd_path"`
	AclPath        string `json:"acl_path"`
	PrivateRepos   bool   `json:"private_repos"`
	AppendOnly     bool   `json:"append_only"`
	TlsCertPath    string `json:"tls_cert_path"`
	TlsKeyPath     string `json:"tls_key_path"`
	NoVerifyUpload bool   `json:"no_verify_upload"`
	Prometheus     bool   `json:"prometheus"`
	QuotaBytes     int64  `json:"quota_bytes"`
}

const configFilename = "holvi-config.json"

// readConfigFile loads the optional config file from the working directory.
// Absent file is not an error; flags layered on top by the entrypoint.
func readConfigFile() (*Config, error) {
	conf := &Config{}

	if _, err := os.Stat(configFilename); os.IsNotExist(err) {
		return conf, nil
	}

	return conf, jsonfile.Read(configFilename, conf, true)
}

// resolvePaths canonicalizes the credential/ACL/data paths once at startup so
// later symlink swaps cannot redirect reads. Missing files resolve to their
// absolute (but not symlink-evaluated) path.
func (c *Config) resolvePaths() error {
	for _, path := range []*string{&c.DataRoot, &c.HtpasswdPath, &c.AclPath} {
		if *path == "" {
			continue
		}

		resolved, err := filepath.Abs(*path)
		if err != nil {
			return err
		}

		if evaled, err := filepath.EvalSymlinks(resolved); err == nil {
			resolved = evaled
		} else if !os.IsNotExist(err) {
			return err
		}

		*path = resolved
	}

	return nil
}
