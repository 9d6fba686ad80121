package models

import (
	"net"
	"strconv"
)

// MongoConfig holds the connection settings handed to mongodump and mongorestore.
type MongoConfig struct {
	Host     string
	Port     int
	Username string // optional, only used together with Password
	Password string // optional, only used together with Username
	Database string
}

// Address returns host:port as expected by the -h flag.
func (c MongoConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HasCredentials reports whether both halves of the credential pair are set.
func (c MongoConfig) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}
