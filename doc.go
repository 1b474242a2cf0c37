/*
Package adb is a client for the Android Debug Bridge (adb) server.

A Client talks to the server on 127.0.0.1:5037 (or wherever Config points) and
opens one connection per request. Host services such as Version, ListDevices
and Connect are answered by the server; a Device routes requests to the adb
daemon of one device: shell commands, forwards, screenshots, the log service
and file transfers through a SyncService.

DeviceMonitor follows host:track-devices and reports devices coming and going.

The client/server protocol is described at
https://android.googlesource.com/platform/packages/modules/adb/+/refs/heads/master/OVERVIEW.TXT
and the file transfer protocol in SYNC.TXT next to it.

The framing of requests and responses lives in the wire package.
*/
package adb
