// Package tokenstore holds lifecycle.TokenStore implementations that do not
// need a SQL database: a Redis backed store and a wrapper that seals the
// credential before handing it to another store.
package tokenstore
