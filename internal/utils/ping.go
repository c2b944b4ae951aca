package utils

import (
	"fmt"
	"net"
	"net/url"
	"time"
)

// pingTimeout bounds every reachability probe
const pingTimeout = 1500 * time.Millisecond

// PingService checks if a service is reachable at the given URL
func PingService(serviceURL string, timeout time.Duration) error {
	parsedURL, err := url.Parse(serviceURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		return fmt.Errorf("invalid URL: no host in %q", serviceURL)
	}
	port := parsedURL.Port()

	// Default ports if not specified
	if port == "" {
		switch parsedURL.Scheme {
		case "https":
			port = "443"
		case "amqp":
			port = "5672"
		case "amqps":
			port = "5671"
		default:
			port = "80"
		}
	}

	address := net.JoinHostPort(host, port)

	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	defer conn.Close()

	return nil
}

// PingAuthorizer checks if the Authorizer service is reachable
func PingAuthorizer(authzURL string) error {
	return PingService(authzURL, pingTimeout)
}

// PingBroker checks if the message broker is reachable
func PingBroker(brokerURL string) error {
	return PingService(brokerURL, pingTimeout)
}
