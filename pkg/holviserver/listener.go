package holviserver

import (
	"net"
	"os"
	"strings"

	"github.com/function61/gokit/fileexists"
	"github.com/function61/gokit/logex"
)

// addr is either a TCP addr ("[host]:port") or "domainsocket:///path/to.sock"
func createTCPOrDomainSocketListener(addr string, logl *logex.Leveled) (net.Listener, error) {
	domainSocketPath := parseDomainSocketPath(addr)

	if domainSocketPath != "" {
		return createDomainSocketListener(domainSocketPath, logl)
	}

	return net.Listen("tcp", addr)
}

func createDomainSocketListener(domainSocketPath string, logl *logex.Leveled) (net.Listener, error) {
	exists, err := fileexists.Exists(domainSocketPath)
	if err != nil {
		return nil, err
	}

	if exists {
		logl.Info.Println("removing previous socket")

		if err := os.Remove(domainSocketPath); err != nil {
			return nil, err
		}
	}

	return net.Listen("unix", domainSocketPath)
}

func parseDomainSocketPath(addr string) string {
	if strings.HasPrefix(addr, "domainsocket://") {
		return addr[len("domainsocket://"):]
	}

	return ""
}
