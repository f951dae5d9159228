package geoip

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// DB wraps a MaxMind GeoIP2 database used to annotate connection logs
// with the peer's country and network operator.
type DB struct {
	reader *geoip2.Reader
	mu     sync.RWMutex
}

// Info contains GeoIP lookup results for one peer address
type Info struct {
	CountryCode string
	CountryName string
	ASN         uint
	ASNOrg      string
}

// Open opens a GeoIP database file
func Open(path string) (*DB, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	return &DB{reader: reader}, nil
}

// Close closes the database
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.reader != nil {
		return db.reader.Close()
	}
	return nil
}

// LookupCountry looks up country information for an IP
func (db *DB) LookupCountry(ipStr string) (string, string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.reader == nil {
		return "", "", fmt.Errorf("database not loaded")
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "", "", fmt.Errorf("invalid IP address: %s", ipStr)
	}

	record, err := db.reader.Country(ip)
	if err != nil {
		return "", "", err
	}

	return record.Country.IsoCode, record.Country.Names["en"], nil
}

// LookupASN looks up ASN information for an IP
func (db *DB) LookupASN(ipStr string) (uint, string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.reader == nil {
		return 0, "", fmt.Errorf("database not loaded")
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return 0, "", fmt.Errorf("invalid IP address: %s", ipStr)
	}

	record, err := db.reader.ASN(ip)
	if err != nil {
		return 0, "", err
	}

	return record.AutonomousSystemNumber, record.AutonomousSystemOrganization, nil
}

// LookupAddr annotates a peer socket address, tolerating a nil
// address, a nil receiver and lookup failures. Connection logging
// must never fail because enrichment did.
func (db *DB) LookupAddr(addr net.Addr) Info {
	if db == nil || addr == nil {
		return Info{}
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}

	info := Info{}
	if code, name, err := db.LookupCountry(host); err == nil {
		info.CountryCode = code
		info.CountryName = name
	}
	if asn, org, err := db.LookupASN(host); err == nil {
		info.ASN = asn
		info.ASNOrg = org
	}
	return info
}
