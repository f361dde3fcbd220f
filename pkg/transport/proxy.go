package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/devkeep/httpwire/pkg/httperr"
	"github.com/devkeep/httpwire/pkg/timing"
	netproxy "golang.org/x/net/proxy"
)

func defaultProxyPort(proxyType string) int {
	switch proxyType {
	case "http":
		return 8080
	case "https":
		return 443
	case "socks4", "socks5":
		return 1080
	default:
		return 0
	}
}

// connectViaProxy dials targetAddr through config.Proxy, tagging metadata
// with what proxy was used.
func (t *Transport) connectViaProxy(ctx context.Context, config Config, timeout time.Duration, timer *timing.Timer, metadata *ConnectionMetadata) (net.Conn, error) {
	proxy := config.Proxy
	if proxy.Type == "" {
		return nil, httperr.NewInvalidError("transport: proxy type cannot be empty")
	}
	if proxy.Host == "" {
		return nil, httperr.NewInvalidError("transport: proxy host cannot be empty")
	}

	proxyPort := proxy.Port
	if proxyPort == 0 {
		proxyPort = defaultProxyPort(proxy.Type)
		if proxyPort == 0 {
			return nil, httperr.NewInvalidError("transport: unsupported proxy type " + proxy.Type)
		}
	}
	proxyAddr := net.JoinHostPort(proxy.Host, strconv.Itoa(proxyPort))
	targetAddr := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))

	proxyTimeout := proxy.ConnTimeout
	if proxyTimeout <= 0 {
		proxyTimeout = timeout
	}

	metadata.ProxyUsed = true
	metadata.ProxyType = proxy.Type
	metadata.ProxyAddr = proxyAddr

	timer.StartTCP()
	defer timer.EndTCP()

	var conn net.Conn
	var err error
	switch proxy.Type {
	case "http", "https":
		conn, err = connectViaHTTPProxy(ctx, proxy, proxyAddr, config, targetAddr, proxyTimeout)
	case "socks4":
		conn, err = connectViaSOCKS4Proxy(ctx, proxy, proxyAddr, targetAddr, proxyTimeout)
	case "socks5":
		conn, err = connectViaSOCKS5Proxy(proxy, proxyAddr, targetAddr, proxyTimeout)
	default:
		return nil, httperr.NewInvalidError("transport: unsupported proxy type " + proxy.Type)
	}
	if err != nil {
		return nil, httperr.NewIOError("transport: proxy connect via "+proxy.Type+" "+proxyAddr, err)
	}

	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		metadata.ConnectedIP = tcpAddr.IP.String()
		metadata.ConnectedPort = tcpAddr.Port
	}
	return conn, nil
}

// connectViaHTTPProxy tunnels to targetAddr via an HTTP(S) CONNECT proxy:
// dial the proxy (optionally over TLS when proxy.Type is "https"), send
// CONNECT, and require a 200 response before handing the raw connection
// back to the caller for the target's own TLS handshake, if any.
func connectViaHTTPProxy(ctx context.Context, proxy *ProxyConfig, proxyAddr string, config Config, targetAddr string, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("connecting to proxy: %w", err)
	}

	if proxy.Type == "https" {
		tlsConfig := proxy.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{ServerName: proxy.Host, InsecureSkipVerify: config.InsecureTLS}
		} else {
			tlsConfig = tlsConfig.Clone()
			if config.InsecureTLS {
				tlsConfig.InsecureSkipVerify = true
			}
			if tlsConfig.ServerName == "" {
				tlsConfig.ServerName = proxy.Host
			}
		}
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("TLS handshake to proxy: %w", err)
		}
		conn = tlsConn
	}

	var req strings.Builder
	fmt.Fprintf(&req, "CONNECT %s HTTP/1.1\r\nHost: %s\r\n", targetAddr, config.Host)
	for key, value := range proxy.Headers {
		fmt.Fprintf(&req, "%s: %s\r\n", key, value)
	}
	if proxy.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(proxy.Username + ":" + proxy.Password))
		fmt.Fprintf(&req, "Proxy-Authorization: Basic %s\r\n", auth)
	}
	req.WriteString("\r\n")

	if _, err := conn.Write([]byte(req.String())); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending CONNECT request: %w", err)
	}

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading CONNECT response: %w", err)
	}
	if !strings.Contains(statusLine, " 200") {
		conn.Close()
		return nil, fmt.Errorf("proxy CONNECT failed: %s", strings.TrimSpace(statusLine))
	}
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("reading CONNECT response headers: %w", err)
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}
	return conn, nil
}

// connectViaSOCKS4Proxy speaks the SOCKS4 CONNECT request directly, since
// SOCKS4 is IPv4-only and x/net/proxy does not implement it. Request:
// VER(1) CMD(1) PORT(2) IP(4) USERID NULL. Response: VER(1) STATUS(1)
// PORT(2) IP(4); STATUS 0x5A is success.
func connectViaSOCKS4Proxy(ctx context.Context, proxy *ProxyConfig, proxyAddr, targetAddr string, timeout time.Duration) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(targetAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid target address: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port: %w", err)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", host, err)
	}
	var targetIP net.IP
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			targetIP = ip4
			break
		}
	}
	if targetIP == nil {
		return nil, fmt.Errorf("no IPv4 address found for %s (SOCKS4 requires IPv4)", host)
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("connecting to SOCKS4 proxy: %w", err)
	}

	req := []byte{0x04, 0x01, byte(port >> 8), byte(port & 0xFF)}
	req = append(req, targetIP...)
	if proxy.Username != "" {
		req = append(req, []byte(proxy.Username)...)
	}
	req = append(req, 0x00)

	if _, err := conn.Write(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending SOCKS4 request: %w", err)
	}

	resp := make([]byte, 8)
	if _, err := io.ReadFull(conn, resp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading SOCKS4 response: %w", err)
	}
	switch resp[1] {
	case 0x5A:
		return conn, nil
	case 0x5B:
		conn.Close()
		return nil, fmt.Errorf("SOCKS4 request rejected")
	case 0x5C:
		conn.Close()
		return nil, fmt.Errorf("SOCKS4 request failed: identd not running")
	case 0x5D:
		conn.Close()
		return nil, fmt.Errorf("SOCKS4 request failed: identd auth failed")
	default:
		conn.Close()
		return nil, fmt.Errorf("SOCKS4 unknown status 0x%02X", resp[1])
	}
}

// connectViaSOCKS5Proxy delegates to golang.org/x/net/proxy, which
// implements RFC 1928 including username/password negotiation.
func connectViaSOCKS5Proxy(proxy *ProxyConfig, proxyAddr, targetAddr string, timeout time.Duration) (net.Conn, error) {
	var auth *netproxy.Auth
	if proxy.Username != "" {
		auth = &netproxy.Auth{User: proxy.Username, Password: proxy.Password}
	}
	dialer, err := netproxy.SOCKS5("tcp", proxyAddr, auth, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("creating SOCKS5 dialer: %w", err)
	}
	conn, err := dialer.Dial("tcp", targetAddr)
	if err != nil {
		return nil, fmt.Errorf("SOCKS5 connect: %w", err)
	}
	return conn, nil
}

// ParseProxyURL parses a proxy convenience string of the form
// "scheme://[user[:pass]@]host[:port]" into a ProxyConfig.
func ParseProxyURL(raw string) (*ProxyConfig, error) {
	schemeSep := strings.Index(raw, "://")
	if schemeSep < 0 {
		return nil, httperr.NewURIError("transport: proxy URL missing scheme: " + raw)
	}
	scheme := strings.ToLower(raw[:schemeSep])
	rest := raw[schemeSep+3:]

	switch scheme {
	case "http", "https", "socks4", "socks5":
	default:
		return nil, httperr.NewInvalidError("transport: unsupported proxy scheme " + scheme)
	}

	var userinfo string
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		userinfo = rest[:at]
		rest = rest[at+1:]
	}

	host := rest
	port := 0
	if colon := strings.LastIndex(rest, ":"); colon >= 0 {
		host = rest[:colon]
		p, err := strconv.Atoi(rest[colon+1:])
		if err != nil {
			return nil, httperr.NewIntError("transport: invalid proxy port", err)
		}
		port = p
	}
	if host == "" {
		return nil, httperr.NewInvalidError("transport: proxy URL missing host: " + raw)
	}

	cfg := &ProxyConfig{Type: scheme, Host: host, Port: port}
	if userinfo != "" {
		if colon := strings.Index(userinfo, ":"); colon >= 0 {
			cfg.Username = userinfo[:colon]
			cfg.Password = userinfo[colon+1:]
		} else {
			cfg.Username = userinfo
		}
	}
	return cfg, nil
}
