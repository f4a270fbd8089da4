package main

import (
	"testing"

	"github.com/groupwarden/warden/util"

	"github.com/stretchr/testify/assert"
)

func TestPollTimeoutWithinClientDeadline(t *testing.T) {
	// an idle long poll holds the connection open for the full pollTimeout;
	// the transport must not give up first
	assert.Less(t, pollTimeout, util.RobustHTTPClient().Timeout)
}
