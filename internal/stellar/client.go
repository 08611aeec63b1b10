package stellar

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	"golang.org/x/net/http2"
)

// NewHorizonClient returns a Horizon client on an HTTP/2 capable transport.
// A zero requestTimeout leaves requests unbounded, which streaming requires.
func NewHorizonClient(endpoint string, requestTimeout time.Duration) (*horizonclient.Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("horizon endpoint cannot be empty")
	}

	httpClient, err := createCustomHttpClient(requestTimeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	return &horizonclient.Client{
		HorizonURL: endpoint,
		HTTP:       httpClient,
	}, nil
}

func createCustomHttpClient(timeout time.Duration) (*http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}
