package frost

// GenerateRound2 evaluates this participant's round-1 polynomial at its
// own identifier (kept as Round2Secret) and at every other participant's
// identifier (one Round2Package per recipient). Spec.md §4.4, Part2Build:
// "building the threshold library's input map ... excluding this
// participant's own round-1 package" — the caller builds that map from
// its round-1 view; this function only needs the coefficients and the
// recipient identifiers.
func GenerateRound2(selfID Identifier, secret Round1Secret, others []Identifier) (Round2Secret, map[string]Round2Package, error) {
	selfShare := evalPolynomial(secret.coefficients, selfID.scalar())

	packages := make(map[string]Round2Package, len(others))
	for _, recipient := range others {
		share := evalPolynomial(secret.coefficients, recipient.scalar())
		packages[recipient.Key()] = Round2Package{
			Sender:    selfID,
			Recipient: recipient,
			Share:     share,
		}
	}
	return Round2Secret{selfShare: selfShare}, packages, nil
}
