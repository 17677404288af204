package proxy

import (
	"fmt"
	"net"
	"net/url"
)

// FromProxyString returns the dialer for an upstream proxy url together with
// the url stripped of credentials, suitable for logging. An empty string
// falls back to the ALL_PROXY environment and then to a direct dialer.
func FromProxyString(proxy string) (ContextDialer, string, error) {
	proxyUrl, proxyStr, err := parseProxy(proxy)
	if err != nil {
		return nil, "", err
	}
	dialer, err := getDialer(proxyUrl)
	if err != nil {
		return nil, "", err
	}
	return dialer, proxyStr, nil
}

func parseProxy(proxyString string) (proxyUrl *url.URL, proxyStr string, err error) {
	if len(proxyString) > 0 {
		proxyUrl, err = url.Parse(proxyString)
		if err != nil {
			return nil, "", fmt.Errorf("parse proxy: %w", err)
		}

		ru := *proxyUrl
		ru.User = nil
		proxyStr = ru.String()
	}
	return
}

func getDialer(proxyUrl *url.URL) (ContextDialer, error) {
	tcpDialer := &net.Dialer{}

	proxyDialer := FromEnvironment()
	if proxyUrl != nil {
		dialer, err := FromURL(proxyUrl, tcpDialer)
		if err != nil {
			return nil, err
		}
		proxyDialer = dialer
	}
	if proxyDialer != Direct {
		return NewContextDialer(proxyDialer), nil
	}
	return tcpDialer, nil
}
