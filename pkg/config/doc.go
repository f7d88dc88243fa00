// Package config loads the test automation configuration file.
//
// The file is YAML:
//
//	device:
//	  ip: 192.168.1.20
//	  password: rokudev-password
//	  screenshotFormat: jpg
//	channel:
//	  id: dev
//	defaults:
//	  ecp:
//	    keyPressDelay: 300   # milliseconds
//	  odc:
//	    timeout: 10000       # milliseconds
//	    observeTimeout: 5000 # milliseconds
//	odc:
//	  port: 9000
//	ecp:
//	  port: 8060
//
// Values missing from the file keep their Default.
package config
