// Package crypto implements the key handling used by midisock secure sessions.
//
// Peers authenticate with static Curve25519 key pairs. Keys are stored in
// configuration as hex strings:
//
//	kp, err := crypto.GenerateKeyPair()
//	fmt.Println(kp.PublicHex())
//
//	secret, err := crypto.ParseKey(cfg.Noise.PrivateKey)
//	kp, err = crypto.FromSecretKey(secret)
//	defer crypto.WipeKeyPair(kp)
//
// The noise package consumes these key pairs for its IK handshake.
package crypto
