//go:build dlib

package main

import _ "recognition-server/faces/dlib"
