/*
Package wbi implements Bilibili's WBI request signing.

Signed endpoints such as /x/player/playurl reject any query that does not
carry a valid w_rid. The signature is computed from two key fragments that the
platform publishes through the nav endpoint and rotates daily.

# Algorithm

 1. Mixin key
    - Concatenate img_key and sub_key (32 characters each).
    - Pick characters in the order given by a fixed 64-entry permutation table.
    - Keep the first 32 characters.

 2. Canonical query
    - Add wts, the current Unix time in seconds.
    - Sort parameter names bytewise.
    - Remove the characters ! ' ( ) * from every value.
    - Percent-encode name and value as JavaScript encodeURIComponent does.
    - Join name=value pairs with &.

 3. Signature
    - w_rid = lowercase hex MD5 of canonical query + mixin key.
    - The signed query is the canonical query followed by &w_rid=<digest>.

# Usage

	signer, err := wbi.NewSigner(types.SigningKeys{ImgKey: img, SubKey: sub}, nil)
	if err != nil {
		return err
	}
	query := signer.Sign(wbi.PlayURLParams(bvid, cid, "112"))

# Script override

When the platform rotates the permutation table, LoadMixer can replace the
built-in table with a script that defines a global function:

	function mixin(orig) { ... return key; }

otto runs the script by default. Builds tagged goja use the goja engine
instead when the engine name is "goja".

# Statelessness

Keys are never cached. Callers fetch fresh fragments for every resolution and
build a new Signer from them.
*/
package wbi
