package oracle

// ServiceLocator identifies the database service a connection logs on to.
type ServiceLocator struct {
	raw     string
	host    string
	port    string
	service string
}

// ServiceFromString returns a locator for a caller-supplied connection
// string, used unchanged.
func ServiceFromString(raw string) ServiceLocator {
	return ServiceLocator{raw: raw}
}

// NewService returns a locator assembled as "host:port/service".
func NewService(host, port, service string) ServiceLocator {
	return ServiceLocator{host: host, port: port, service: service}
}

// String returns the connection string, or "" when the locator is
// incomplete.
func (s ServiceLocator) String() string {
	if s.raw != "" {
		return s.raw
	}
	if s.host == "" || s.port == "" || s.service == "" {
		return ""
	}
	return s.host + ":" + s.port + "/" + s.service
}
