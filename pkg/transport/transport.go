// Package transport establishes the half-duplex connection used to send a
// request and receive a response: plain TCP or TLS-wrapped TCP, with an
// optional upstream proxy hop and an optional TLS handshake.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/devkeep/httpwire/pkg/httperr"
	"github.com/devkeep/httpwire/pkg/timing"
	"github.com/devkeep/httpwire/pkg/tlsconfig"
)

// ProxyConfig describes an upstream proxy hop.
type ProxyConfig struct {
	Type        string // "http", "https", "socks4", "socks5"
	Host        string
	Port        int
	Username    string
	Password    string
	ConnTimeout time.Duration
	Headers     map[string]string
	TLSConfig   *tls.Config
}

// Config holds everything needed to establish one connection.
type Config struct {
	Scheme string
	Host   string
	Port   int

	// SNI specifies custom Server Name Indication for the TLS handshake.
	SNI string

	// DisableSNI disables the SNI extension entirely. Mutually exclusive
	// with SNI.
	DisableSNI bool

	// InsecureTLS skips certificate verification. Overrides
	// TLSConfig.InsecureSkipVerify when both are set.
	InsecureTLS bool

	ConnTimeout time.Duration
	DNSTimeout  time.Duration

	Proxy *ProxyConfig

	CustomCACerts [][]byte

	ClientCertPEM  []byte
	ClientKeyPEM   []byte
	ClientCertFile string
	ClientKeyFile  string

	TLSConfig *tls.Config

	MinTLSVersion    uint16
	MaxTLSVersion    uint16
	TLSRenegotiation tls.RenegotiationSupport
	CipherSuites     []uint16
}

// ConnectionMetadata records what actually happened while connecting, for
// the response's observability surface.
type ConnectionMetadata struct {
	ConnectedIP        string
	ConnectedPort      int
	NegotiatedProtocol string

	LocalAddr  string
	RemoteAddr string

	TLSVersion     string
	TLSCipherSuite string
	TLSServerName  string
	TLSSessionID   string
	TLSResumed     bool

	ProxyUsed bool
	ProxyType string
	ProxyAddr string
}

// Transport resolves addresses and dials connections. It holds no
// connection state between requests: every connection is one-shot, closed
// by the caller once the response body has been drained.
type Transport struct {
	resolver *net.Resolver
}

// New creates a Transport using the default resolver.
func New() *Transport {
	return &Transport{resolver: net.DefaultResolver}
}

// NewWithResolver creates a Transport using a caller-supplied resolver.
func NewWithResolver(resolver *net.Resolver) *Transport {
	return &Transport{resolver: resolver}
}

// Connect resolves config.Host, dials a connection (directly, or through
// config.Proxy), and upgrades to TLS when config.Scheme is "https".
func (t *Transport) Connect(ctx context.Context, config Config, timer *timing.Timer) (net.Conn, *ConnectionMetadata, error) {
	if err := validateConfig(config); err != nil {
		return nil, nil, err
	}

	metadata := &ConnectionMetadata{}

	connTimeout := config.ConnTimeout
	if connTimeout <= 0 {
		connTimeout = 10 * time.Second
	}

	var conn net.Conn
	var err error

	if config.Proxy != nil {
		conn, err = t.connectViaProxy(ctx, config, connTimeout, timer, metadata)
	} else {
		targetAddr := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
		conn, err = t.connectDirect(ctx, config.Host, targetAddr, connTimeout, timer)
	}
	if err != nil {
		return nil, nil, err
	}

	if conn.LocalAddr() != nil {
		metadata.LocalAddr = conn.LocalAddr().String()
	}
	if conn.RemoteAddr() != nil {
		metadata.RemoteAddr = conn.RemoteAddr().String()
		if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok && !metadata.ProxyUsed {
			metadata.ConnectedIP = tcpAddr.IP.String()
			metadata.ConnectedPort = tcpAddr.Port
		}
	}

	if strings.EqualFold(config.Scheme, "https") {
		conn, err = t.upgradeTLS(ctx, conn, config, timer, metadata)
		if err != nil {
			if conn != nil {
				conn.Close()
			}
			return nil, nil, httperr.NewTLSError(config.Host, config.Port, err)
		}
	} else {
		metadata.NegotiatedProtocol = "HTTP/1.1"
	}

	return conn, metadata, nil
}

func validateConfig(config Config) error {
	if config.Host == "" {
		return httperr.NewInvalidError("transport: host cannot be empty")
	}
	if config.Port <= 0 || config.Port > 65535 {
		return httperr.NewInvalidError("transport: port must be between 1 and 65535")
	}
	if config.Scheme != "http" && config.Scheme != "https" {
		return httperr.NewInvalidError("transport: scheme must be http or https")
	}
	if config.DisableSNI && config.SNI != "" {
		return httperr.NewInvalidError("transport: cannot set both DisableSNI and SNI")
	}
	return nil
}

// connectDirect resolves host and dials every returned address in order,
// honoring connTimeout per attempt. It returns as soon as one attempt
// succeeds; a timeout on any attempt is returned immediately without
// trying further addresses, and any other error is only surfaced once the
// last address has also failed.
func (t *Transport) connectDirect(ctx context.Context, host, targetAddr string, connTimeout time.Duration, timer *timing.Timer) (net.Conn, error) {
	timer.StartDNS()
	dnsCtx, cancel := context.WithTimeout(ctx, dnsTimeoutFor(connTimeout))
	addrs, err := t.resolver.LookupIPAddr(dnsCtx, host)
	cancel()
	timer.EndDNS()
	if err != nil {
		return nil, httperr.NewIOError("transport: dns lookup", err)
	}
	if len(addrs) == 0 {
		return nil, httperr.NewIOError("transport: dns lookup", fmt.Errorf("no addresses found for %s", host))
	}

	_, portStr, err := net.SplitHostPort(targetAddr)
	if err != nil {
		return nil, httperr.NewInvalidError("transport: invalid target address " + targetAddr)
	}

	timer.StartTCP()
	defer timer.EndTCP()

	dialer := &net.Dialer{Timeout: connTimeout}
	var lastErr error
	for idx, addr := range addrs {
		dialAddr := net.JoinHostPort(addr.IP.String(), portStr)
		conn, err := dialer.DialContext(ctx, "tcp", dialAddr)
		if err == nil {
			return conn, nil
		}
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, httperr.NewTimeoutError("transport: connect to "+dialAddr, connTimeout)
		}
		lastErr = err
		if idx+1 == len(addrs) {
			return nil, httperr.NewIOError("transport: connect", lastErr)
		}
	}
	return nil, httperr.NewIOError("transport: connect", lastErr)
}

func dnsTimeoutFor(connTimeout time.Duration) time.Duration {
	if connTimeout > 0 {
		return connTimeout
	}
	return 5 * time.Second
}

func (t *Transport) upgradeTLS(ctx context.Context, conn net.Conn, config Config, timer *timing.Timer, metadata *ConnectionMetadata) (net.Conn, error) {
	timer.StartTLS()
	defer timer.EndTLS()

	handshakeTimeout := config.ConnTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	tlsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	var tlsConfig *tls.Config
	if config.TLSConfig != nil {
		tlsConfig = config.TLSConfig.Clone()
		if config.InsecureTLS {
			tlsConfig.InsecureSkipVerify = true
		}
		tlsConfig.NextProtos = []string{"http/1.1"}
	} else {
		tlsConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: config.InsecureTLS,
			NextProtos:         []string{"http/1.1"},
		}
		if len(config.CustomCACerts) > 0 {
			rootCAs, poolErr := x509.SystemCertPool()
			if poolErr != nil || rootCAs == nil {
				rootCAs = x509.NewCertPool()
			}
			for i, caCert := range config.CustomCACerts {
				if ok := rootCAs.AppendCertsFromPEM(caCert); !ok {
					return nil, fmt.Errorf("failed to parse CA certificate at index %d", i)
				}
			}
			tlsConfig.RootCAs = rootCAs
		}
		ConfigureSNI(tlsConfig, config.SNI, config.DisableSNI, config.Host)
	}

	if config.MinTLSVersion > 0 && tlsConfig.MinVersion == 0 {
		tlsConfig.MinVersion = config.MinTLSVersion
	}
	if config.MaxTLSVersion > 0 && tlsConfig.MaxVersion == 0 {
		tlsConfig.MaxVersion = config.MaxTLSVersion
	}
	if len(config.CipherSuites) > 0 && len(tlsConfig.CipherSuites) == 0 {
		tlsConfig.CipherSuites = config.CipherSuites
	}
	if config.TLSRenegotiation != 0 {
		tlsConfig.Renegotiation = config.TLSRenegotiation
	}

	clientCert, err := loadClientCertificate(config)
	if err != nil {
		return nil, err
	}
	if clientCert != nil {
		tlsConfig.Certificates = append(tlsConfig.Certificates, *clientCert)
	}

	if tlsConfig.ServerName != "" {
		metadata.TLSServerName = tlsConfig.ServerName
	} else if !config.DisableSNI {
		metadata.TLSServerName = config.Host
	}

	tlsConn := tls.Client(conn, tlsConfig)
	if err := tlsConn.HandshakeContext(tlsCtx); err != nil {
		conn.Close()
		return nil, err
	}

	state := tlsConn.ConnectionState()
	metadata.TLSVersion = tlsconfig.GetVersionName(state.Version)
	metadata.TLSCipherSuite = tlsconfig.GetCipherSuiteName(state.CipherSuite)
	metadata.NegotiatedProtocol = state.NegotiatedProtocol
	if metadata.NegotiatedProtocol == "" {
		metadata.NegotiatedProtocol = "HTTP/1.1"
	}
	metadata.TLSResumed = state.DidResume
	if len(state.TLSUnique) > 0 {
		metadata.TLSSessionID = hex.EncodeToString(state.TLSUnique)
	}

	return tlsConn, nil
}

// loadClientCertificate loads an mTLS client certificate from PEM bytes or
// file paths. Returns nil if none is configured.
func loadClientCertificate(config Config) (*tls.Certificate, error) {
	hasPEM := len(config.ClientCertPEM) > 0 && len(config.ClientKeyPEM) > 0
	hasFile := config.ClientCertFile != "" && config.ClientKeyFile != ""
	if !hasPEM && !hasFile {
		return nil, nil
	}

	certPEM, keyPEM := config.ClientCertPEM, config.ClientKeyPEM
	if hasFile {
		var err error
		certPEM, err = os.ReadFile(config.ClientCertFile)
		if err != nil {
			return nil, fmt.Errorf("reading client certificate file %s: %w", config.ClientCertFile, err)
		}
		keyPEM, err = os.ReadFile(config.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading client key file %s: %w", config.ClientKeyFile, err)
		}
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing client certificate/key: %w", err)
	}
	return &cert, nil
}

// ConfigureSNI applies SNI configuration to a TLS config: an explicit
// ServerName is always preserved, DisableSNI leaves it empty, otherwise
// customSNI wins over fallbackHost.
func ConfigureSNI(tlsConfig *tls.Config, customSNI string, disableSNI bool, fallbackHost string) {
	if tlsConfig == nil || tlsConfig.ServerName != "" || disableSNI {
		return
	}
	if customSNI != "" {
		tlsConfig.ServerName = customSNI
	} else {
		tlsConfig.ServerName = fallbackHost
	}
}
