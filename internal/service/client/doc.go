// Package client asks a running mirror server whether its last pass succeeded.
package client
