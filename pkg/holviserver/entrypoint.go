package holviserver

import (
	"github.com/function61/gokit/logex"
	"github.com/function61/gokit/osutil"
	"github.com/spf13/cobra"
)

func Entrypoint() *cobra.Command {
	flagConf := Config{}

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Starts the repository server",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			rootLogger := logex.StandardLogger()

			osutil.ExitIfError(func() error {
				conf, err := readConfigFile()
				if err != nil {
					return err
				}

				mergeChangedFlags(cmd, &flagConf, conf)

				return runServer(
					osutil.CancelOnInterruptOrTerminate(rootLogger),
					*conf,
					rootLogger)
			}())
		},
	}

	cmd.Flags().StringVar(&flagConf.ListenAddr, "listen", ":8000", "Listen address (TCP addr or domainsocket://path)")
	cmd.Flags().StringVar(&flagConf.DataRoot, "path", "/tmp/restic", "Data root directory")
	cmd.Flags().BoolVar(&flagConf.NoAuth, "no-auth", false, "Disable authentication (every request passes)")
	cmd.Flags().StringVar(&flagConf.HtpasswdPath, "htpasswd-file", ".htpasswd", "Credential file (username:MD5-APR1 per line)")
	cmd.Flags().StringVar(&flagConf.AclPath, "acl-file", "", "Per-repository ACL file (TOML); fallback rules apply without it")
	cmd.Flags().BoolVar(&flagConf.PrivateRepos, "private-repos", false, "Users may only access the repository named after themselves")
	cmd.Flags().BoolVar(&flagConf.AppendOnly, "append-only", false, "Forbid Modify-level operations via the ACL fallback")
	cmd.Flags().StringVar(&flagConf.TlsCertPath, "tls-cert", "", "TLS certificate path (TLS enabled when set)")
	cmd.Flags().StringVar(&flagConf.TlsKeyPath, "tls-key", "", "TLS private key path")
	cmd.Flags().BoolVar(&flagConf.NoVerifyUpload, "no-verify-upload", false, "Skip SHA-256 verification of hex-named uploads")
	cmd.Flags().BoolVar(&flagConf.Prometheus, "prometheus", false, "Expose Prometheus metrics at /metrics")
	cmd.Flags().Int64Var(&flagConf.QuotaBytes, "quota", 0, "Advisory data root quota in bytes (reported, never enforced)")

	return cmd
}

// a flag the user actually set wins over the config file's value
func mergeChangedFlags(cmd *cobra.Command, flagConf *Config, conf *Config) {
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}

	set("listen", func() { conf.ListenAddr = flagConf.ListenAddr })
	set("path", func() { conf.DataRoot = flagConf.DataRoot })
	set("no-auth", func() { conf.NoAuth = flagConf.NoAuth })
	set("htpasswd-file", func() { conf.HtpasswdPath = flagConf.HtpasswdPath })
	set("acl-file", func() { conf.AclPath = flagConf.AclPath })
	set("private-repos", func() { conf.PrivateRepos = flagConf.PrivateRepos })
	set("append-only", func() { conf.AppendOnly = flagConf.AppendOnly })
	set("tls-cert", func() { conf.TlsCertPath = flagConf.TlsCertPath })
	set("tls-key", func() { conf.TlsKeyPath = flagConf.TlsKeyPath })
	set("no-verify-upload", func() { conf.NoVerifyUpload = flagConf.NoVerifyUpload })
	set("prometheus", func() { conf.Prometheus = flagConf.Prometheus })
	set("quota", func() { conf.QuotaBytes = flagConf.QuotaBytes })

	// unset flags whose default is non-zero still need to land
	if conf.ListenAddr == "" {
		conf.ListenAddr = flagConf.ListenAddr
	}
	if conf.DataRoot == "" {
		conf.DataRoot = flagConf.DataRoot
	}
	if conf.HtpasswdPath == "" {
		conf.HtpasswdPath = flagConf.HtpasswdPath
	}
}
