/*
Package cert abstracts the crypto-suite certificate parser, an external
collaborator consumed as a library returning typed fields. pkg/canon
depends only on the Parser interface, never on a concrete
cryptographic format, so the real certificate/crypto suite can
be wired in without touching canonization logic.

Builder and the tag-length-value wire format in this package are a
deterministic stand-in used by the test suite; they carry no
cryptographic meaning.
*/
package cert
