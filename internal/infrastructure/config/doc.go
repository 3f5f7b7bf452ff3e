// Package config loads skysync's YAML configuration.
//
// Load layers three sources, later ones winning: built-in defaults, the
// YAML file, then SKYSYNC_* environment variables (SKYSYNC_SKY_PASSWORD,
// SKYSYNC_MQTT_HOST, SKYSYNC_API_JWT_SECRET and so on). The result is
// validated as a whole and every problem is reported in one error.
//
// Durations are plain integers in the file. Use the Get* accessors
// (GetRequestTimeout, GetRetention, ...) rather than converting by hand;
// they carry the unit.
//
// The Sky account password grants control of the alarm. Prefer the
// environment variable to the file, and keep the file mode 0600 if it
// does hold credentials.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
package config
